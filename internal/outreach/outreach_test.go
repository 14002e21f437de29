package outreach

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/store"
)

// mockScorer returns per-lead canned scores keyed by lead name.
type mockScorer struct {
	scores map[string]models.LeadScore
	errs   map[string]error
}

func (m *mockScorer) ScoreLead(ctx context.Context, lead models.Lead) (models.LeadScore, error) {
	if err, ok := m.errs[lead.Name]; ok {
		return models.LeadScore{}, err
	}
	return m.scores[lead.Name], nil
}

func (m *mockScorer) ClassifyIntent(ctx context.Context, text string) (models.Intent, error) {
	return "", errors.New("not used in outreach tests")
}

func (m *mockScorer) GenerateReply(ctx context.Context, history []models.Turn) (string, error) {
	return "", errors.New("not used in outreach tests")
}

type sentMessage struct {
	To   string
	Body string
}

type mockSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error
}

func (m *mockSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failFor[to]; ok {
		return "", err
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return "SM123", nil
}

func seedLeads(t *testing.T, st store.Store, leads ...models.Lead) {
	t.Helper()
	_, err := st.AddLeads(context.Background(), leads)
	require.NoError(t, err)
}

func TestRunContactsQualifiedLeads(t *testing.T) {
	st := store.NewInMemoryStore()
	seedLeads(t, st,
		models.Lead{Name: "Clínica Norte", Phone: "+5215511111111", Status: models.LeadStatusNew},
		models.Lead{Name: "Clínica Sur", Phone: "+5215522222222", Status: models.LeadStatusNew},
	)
	scorer := &mockScorer{scores: map[string]models.LeadScore{
		"Clínica Norte": {Score: 8, IsQualified: true, SuggestedMessage: "Hola, soy Pedro de Violet Wave. ¿Cómo manejan las inasistencias?"},
		"Clínica Sur":   {Score: 3, IsQualified: false, Reason: "sin presencia digital"},
	}}
	sender := &mockSender{}

	job, err := NewJob(WithStore(st), WithGenAI(scorer), WithSender(sender))
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Contacted)
	assert.Equal(t, 1, report.Disqualified)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+5215511111111", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "Pedro")

	// Both leads left the New pool.
	remaining, err := st.FindNewLeads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunScoringErrorDisqualifies(t *testing.T) {
	st := store.NewInMemoryStore()
	seedLeads(t, st, models.Lead{Name: "Clínica Rota", Phone: "+5215533333333", Status: models.LeadStatusNew})
	scorer := &mockScorer{errs: map[string]error{"Clínica Rota": errors.New("malformed scoring result")}}
	sender := &mockSender{}

	job, err := NewJob(WithStore(st), WithGenAI(scorer), WithSender(sender))
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Disqualified)
	assert.Empty(t, sender.sent)
}

func TestRunQualifiedWithoutPhoneIsSkipped(t *testing.T) {
	st := store.NewInMemoryStore()
	seedLeads(t, st, models.Lead{Name: "Clínica Sin Tel", Status: models.LeadStatusNew})
	scorer := &mockScorer{scores: map[string]models.LeadScore{
		"Clínica Sin Tel": {Score: 9, IsQualified: true, SuggestedMessage: "Hola!"},
	}}
	sender := &mockSender{}

	job, err := NewJob(WithStore(st), WithGenAI(scorer), WithSender(sender))
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, sender.sent)

	// The lead stays New so a future run can retry once a phone is known.
	remaining, err := st.FindNewLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, models.LeadStatusNew, remaining[0].Status)
}

func TestRunSendFailureLeavesLeadNew(t *testing.T) {
	st := store.NewInMemoryStore()
	seedLeads(t, st, models.Lead{Name: "Clínica Norte", Phone: "+5215511111111", Status: models.LeadStatusNew})
	scorer := &mockScorer{scores: map[string]models.LeadScore{
		"Clínica Norte": {Score: 8, IsQualified: true, SuggestedMessage: "Hola!"},
	}}
	sender := &mockSender{failFor: map[string]error{"+5215511111111": errors.New("twilio unavailable")}}

	job, err := NewJob(WithStore(st), WithGenAI(scorer), WithSender(sender))
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Contacted)

	remaining, err := st.FindNewLeads(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestRunEmptyDirectory(t *testing.T) {
	job, err := NewJob(
		WithStore(store.NewInMemoryStore()),
		WithGenAI(&mockScorer{}),
		WithSender(&mockSender{}),
	)
	require.NoError(t, err)

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OutreachReport{}, report)
}

func TestNewJobRequiresDependencies(t *testing.T) {
	_, err := NewJob()
	require.Error(t, err)
	_, err = NewJob(WithStore(store.NewInMemoryStore()))
	require.Error(t, err)
	_, err = NewJob(WithStore(store.NewInMemoryStore()), WithGenAI(&mockScorer{}))
	require.Error(t, err)
}
