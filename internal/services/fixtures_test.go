package services

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/atelier-backend/internal/data/aggregates"
	"github.com/yungbote/atelier-backend/internal/data/repos"
	"github.com/yungbote/atelier-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/atelier-backend/internal/domain/aggregates"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/eventbus"
	"github.com/yungbote/atelier-backend/internal/platform/imagegen"
	"github.com/yungbote/atelier-backend/internal/platform/paygw"
)

const testWebhookSecret = "whsec_test"

func asUser(userID string) context.Context {
	return ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{UserID: userID})
}

type fakeGateway struct {
	mu       sync.Mutex
	confirm  func(req paygw.ConfirmRequest) (*paygw.Payment, error)
	lookup   func(key string) (*paygw.Payment, error)
	confirms []paygw.ConfirmRequest
	cancels  []string
}

func (g *fakeGateway) Confirm(_ context.Context, req paygw.ConfirmRequest) (*paygw.Payment, error) {
	g.mu.Lock()
	g.confirms = append(g.confirms, req)
	fn := g.confirm
	g.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &paygw.Payment{PaymentKey: req.PaymentKey, OrderID: req.OrderID, Status: paygw.StatusDone, TotalAmount: req.Amount}, nil
}

func (g *fakeGateway) Lookup(_ context.Context, key string) (*paygw.Payment, error) {
	if g.lookup != nil {
		return g.lookup(key)
	}
	return nil, domainagg.NewError(domainagg.CodeNotFound, "fake.lookup", "payment not found", nil)
}

func (g *fakeGateway) Cancel(_ context.Context, key, _ string) (*paygw.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, key)
	return &paygw.Payment{PaymentKey: key, Status: paygw.StatusCanceled}, nil
}

func (g *fakeGateway) confirmCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.confirms)
}

type fakeProvider struct {
	mu           sync.Mutex
	predictions  map[string]*imagegen.Prediction
	files        map[string][]byte
	// contentTypes overrides the image/png default per URL.
	contentTypes map[string]string
	downloadErr  error
	polls        int
	downloads    int
}

func (p *fakeProvider) GetPrediction(_ context.Context, id string) (*imagegen.Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	pred, ok := p.predictions[id]
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeNotFound, "fake.get_prediction", "prediction not found", nil)
	}
	return pred, nil
}

func (p *fakeProvider) Download(_ context.Context, url string) (*imagegen.Download, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloads++
	if p.downloadErr != nil {
		return nil, p.downloadErr
	}
	data, ok := p.files[url]
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeDownloadFailed, "fake.download", "no such file", nil)
	}
	ct := "image/png"
	if v, ok := p.contentTypes[url]; ok {
		ct = v
	}
	return &imagegen.Download{Data: data, ContentType: ct}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	putErr  error
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return false, s.putErr
	}
	s.puts++
	if _, ok := s.objects[key]; ok {
		return false, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return false, err
	}
	s.objects[key] = b
	return true, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) SignedURL(key string, ttl time.Duration) (string, error) {
	return "https://signed.test/" + key + "?ttl=" + ttl.String(), nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *recordingBus) Publish(_ context.Context, ev eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, func(eventbus.Event)) error { return nil }
func (b *recordingBus) Close() error                                        { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type paymentFixture struct {
	db      *gorm.DB
	svc     PaymentService
	ledger  domainagg.LedgerAggregate
	gateway *fakeGateway
	bus     *recordingBus
	orders  repos.OrderRepo
	hooks   repos.WebhookEventRepo
	bal     repos.CreditBalanceRepo
	txs     repos.CreditTransactionRepo
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &paymentFixture{
		db:      db,
		gateway: &fakeGateway{},
		bus:     &recordingBus{},
		orders:  repos.NewOrderRepo(db, log),
		hooks:   repos.NewWebhookEventRepo(db, log),
		bal:     repos.NewCreditBalanceRepo(db, log),
		txs:     repos.NewCreditTransactionRepo(db, log),
	}
	f.ledger = aggregates.NewLedgerAggregate(aggregates.LedgerAggregateDeps{
		Base:         aggregates.BaseDeps{DB: db, Log: log},
		Orders:       f.orders,
		Balances:     f.bal,
		Transactions: f.txs,
	})
	catalog, err := NewCreditCatalog(DefaultCreditPackages())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	f.svc = NewPaymentService(PaymentServiceDeps{
		Log:           log,
		Orders:        f.orders,
		Webhooks:      f.hooks,
		Transactions:  f.txs,
		Ledger:        f.ledger,
		Gateway:       f.gateway,
		Catalog:       catalog,
		Events:        f.bus,
		WebhookSecret: testWebhookSecret,
	})
	return f
}

type generationFixture struct {
	db       *gorm.DB
	svc      GenerationService
	jobs     repos.GenerationJobRepo
	provider *fakeProvider
	store    *fakeStore
	bus      *recordingBus
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &generationFixture{
		db:       db,
		jobs:     repos.NewGenerationJobRepo(db, log),
		provider: &fakeProvider{predictions: map[string]*imagegen.Prediction{}, files: map[string][]byte{}},
		store:    newFakeStore(),
		bus:      &recordingBus{},
	}
	agg := aggregates.NewGenerationAggregate(aggregates.GenerationAggregateDeps{
		Base: aggregates.BaseDeps{DB: db, Log: log},
		Jobs: f.jobs,
	})
	f.svc = NewGenerationService(GenerationServiceDeps{
		Log:          log,
		Jobs:         f.jobs,
		Aggregate:    agg,
		Provider:     f.provider,
		Store:        f.store,
		Events:       f.bus,
		SignedURLTTL: time.Hour,
	})
	return f
}
