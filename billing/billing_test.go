package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bygga/bygga/db"
	"github.com/bygga/bygga/domain"
	"github.com/bygga/bygga/encryption"
	"github.com/bygga/bygga/metrics"
	"github.com/bygga/bygga/payment"
	"github.com/bygga/bygga/repository"
	"github.com/bygga/bygga/testing/mocks"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

const (
	testAPIKey     = "gateway-api-key"
	testMerchantID = "merchant-1"
	testAppURL     = "https://deploy.example.com"
)

var billingNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	service  *Service
	gateway  *mocks.MockGateway
	projects repository.ProjectRepository
	secrets  repository.SecretRepository
	project  *domain.Project
	metrics  *metrics.Metrics
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.InitDatabase(db.DBConfig{Path: ":memory:", LogLevel: logger.Silent})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAll(database))

	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewEncryptionService(key)
	require.NoError(t, err)

	projects := repository.NewProjectRepository(database, enc)
	secrets := repository.NewSecretRepository(database)

	monthly, perUse := 9.5, 0.2
	project, err := projects.Create(context.Background(), &domain.Project{
		Name:    "Static Site",
		Pricing: domain.Pricing{Monthly: &monthly, PerUse: &perUse},
		PaymentConfig: &domain.PaymentConfig{
			Cryptomus: &domain.CryptomusConfig{APIKey: testAPIKey, MerchantID: testMerchantID},
		},
	})
	require.NoError(t, err)

	gateway := &mocks.MockGateway{}
	m := metrics.New()
	service := NewService(projects, secrets, gateway, m, Config{AppURL: testAppURL + "/"})
	service.now = func() time.Time { return billingNow }

	return &fixture{
		service:  service,
		gateway:  gateway,
		projects: projects,
		secrets:  secrets,
		project:  project,
		metrics:  m,
	}
}

// webhookBody is a gateway notification in the field order the gateway sends
type webhookBody struct {
	Type           string `json:"type"`
	UUID           string `json:"uuid"`
	OrderID        string `json:"order_id"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	AdditionalData string `json:"additional_data,omitempty"`
}

func (b webhookBody) unsigned(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return data
}

// signed appends a sign field computed over the unsigned body
func (b webhookBody) signed(t *testing.T, apiKey string) []byte {
	t.Helper()
	data := b.unsigned(t)
	sign := payment.SignBytes(data, apiKey)
	return append(data[:len(data)-1], []byte(`,"sign":"`+sign+`"}`)...)
}

func newWebhook(t *testing.T, projectID int64, orderType domain.OrderType, quantity int, secret string) webhookBody {
	t.Helper()
	additional, err := domain.AdditionalData{
		ProjectID: projectID,
		OrderType: orderType,
		Quantity:  quantity,
		UnitPrice: 1,
		Secret:    secret,
	}.Encode()
	require.NoError(t, err)

	return webhookBody{
		Type:           "payment",
		UUID:           "4b5a1e1c-6c5c-4c47-9a3e-2f7c1c0e9d11",
		OrderID:        domain.NewOrderToken(projectID, orderType, billingNow).String(),
		Amount:         "28.5",
		Currency:       "USD",
		Status:         "paid",
		AdditionalData: additional,
	}
}

func intPtr(v int) *int {
	return &v
}
