package handlers

import (
	"context"
	"net/http"

	"predictive_alerts/internal/alerting"
	"predictive_alerts/internal/models"
	"predictive_alerts/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockPipeline struct {
	result  service.BatchResult
	err     error
	lastReq service.BatchRequest
	calls   int
}

func (m *mockPipeline) ProcessBatch(_ context.Context, req service.BatchRequest) (service.BatchResult, error) {
	m.calls++
	m.lastReq = req
	return m.result, m.err
}

type mockAlerts struct {
	alert      models.Alert
	list       []models.Alert
	err        error
	lastID     string
	lastFilter models.AlertFilter
	lastAction string
}

func (m *mockAlerts) GetAlert(_ context.Context, id string) (models.Alert, error) {
	m.lastID = id
	return m.alert, m.err
}
func (m *mockAlerts) ListAlerts(_ context.Context, f models.AlertFilter) ([]models.Alert, error) {
	m.lastFilter = f
	return m.list, m.err
}
func (m *mockAlerts) ValidateAlert(ctx context.Context, id string) (models.Alert, error) {
	m.lastAction = "validate"
	return m.GetAlert(ctx, id)
}
func (m *mockAlerts) MarkFalsePositive(ctx context.Context, id string) (models.Alert, error) {
	m.lastAction = "false_positive"
	return m.GetAlert(ctx, id)
}
func (m *mockAlerts) CloseAlert(ctx context.Context, id string) (models.Alert, error) {
	m.lastAction = "close"
	return m.GetAlert(ctx, id)
}

type mockEquipment struct {
	equipment       models.Equipment
	list            []models.Equipment
	flag            models.VulnerabilityFlag
	err             error
	lastRegistered  models.Equipment
	lastID          string
	lastMaintenance models.MaintenanceEvent
}

func (m *mockEquipment) RegisterEquipment(_ context.Context, e models.Equipment) (models.Equipment, error) {
	m.lastRegistered = e
	return m.equipment, m.err
}
func (m *mockEquipment) GetEquipment(_ context.Context, id string) (models.Equipment, error) {
	m.lastID = id
	return m.equipment, m.err
}
func (m *mockEquipment) ListEquipment(_ context.Context, clientID string) ([]models.Equipment, error) {
	m.lastID = clientID
	return m.list, m.err
}
func (m *mockEquipment) DeactivateEquipment(_ context.Context, id string) (models.Equipment, error) {
	m.lastID = id
	return m.equipment, m.err
}
func (m *mockEquipment) RecordMaintenance(_ context.Context, id string, ev models.MaintenanceEvent) (models.VulnerabilityFlag, error) {
	m.lastID = id
	m.lastMaintenance = ev
	return m.flag, m.err
}

type mockCorrelation struct {
	result     alerting.CorrelationResult
	clusters   []models.RootCauseCluster
	err        error
	lastClient string
}

func (m *mockCorrelation) Correlate(_ context.Context, clientID string) (alerting.CorrelationResult, error) {
	m.lastClient = clientID
	return m.result, m.err
}
func (m *mockCorrelation) ListClusters(_ context.Context, clientID string) ([]models.RootCauseCluster, error) {
	m.lastClient = clientID
	return m.clusters, m.err
}

type mockVulnerability struct {
	flag           models.VulnerabilityFlag
	flags          []models.VulnerabilityFlag
	err            error
	lastID         string
	lastActiveOnly bool
}

func (m *mockVulnerability) Recompute(_ context.Context, id string) (models.VulnerabilityFlag, error) {
	m.lastID = id
	return m.flag, m.err
}
func (m *mockVulnerability) ScanClient(_ context.Context, clientID string) ([]models.VulnerabilityFlag, error) {
	m.lastID = clientID
	return m.flags, m.err
}
func (m *mockVulnerability) ListFlags(_ context.Context, clientID string, activeOnly bool) ([]models.VulnerabilityFlag, error) {
	m.lastID = clientID
	m.lastActiveOnly = activeOnly
	return m.flags, m.err
}

type mockProfiles struct {
	profile     models.RiskProfile
	err         error
	lastProfile models.RiskProfile
	lastClient  string
	lastType    string
}

func (m *mockProfiles) UpsertProfile(_ context.Context, p models.RiskProfile) (models.RiskProfile, error) {
	m.lastProfile = p
	return m.profile, m.err
}
func (m *mockProfiles) ResolveProfile(_ context.Context, clientID, equipmentType string) (models.RiskProfile, error) {
	m.lastClient = clientID
	m.lastType = equipmentType
	return m.profile, m.err
}
func (m *mockProfiles) SeedProfiles(_ context.Context, profiles []models.RiskProfile) (int, error) {
	return len(profiles), m.err
}

type mockReports struct {
	report    service.Report
	err       error
	lastQuery service.ReportQuery
}

func (m *mockReports) Snapshot(_ context.Context, q service.ReportQuery) (service.Report, error) {
	m.lastQuery = q
	return m.report, m.err
}

type mockMonitoring struct {
	status     service.ClientStatus
	err        error
	lastClient string
}

func (m *mockMonitoring) ClientStatus(_ context.Context, clientID string) (service.ClientStatus, error) {
	m.lastClient = clientID
	return m.status, m.err
}

type mockEventLog struct {
	resp       []models.PipelineEvent
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(_ context.Context, f service.LogFilter) ([]models.PipelineEvent, error) {
	m.lastFilter = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, nil)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
