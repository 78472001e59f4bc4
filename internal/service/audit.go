package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"predictive_alerts/internal/logger"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/repository"
)

// auditor appends to the pipeline event log. A failed append is logged and
// never fails the operation that produced the event.
type auditor struct {
	events repository.EventRepo
	log    *logger.Logger
}

func newAuditor(events repository.EventRepo, log *logger.Logger) *auditor {
	return &auditor{events: events, log: log}
}

func (a *auditor) record(ctx context.Context, typ, equipmentID, description string, at time.Time, meta map[string]any) {
	ev := models.PipelineEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  at,
		Type:        typ,
		EquipmentID: equipmentID,
		Description: description,
	}
	if meta != nil {
		ev.Metadata = meta
	}
	if err := a.events.Append(ctx, ev); err != nil {
		a.log.Errorw("audit_append_failed", "type", typ, "equipment_id", equipmentID, "err", err)
	}
}
