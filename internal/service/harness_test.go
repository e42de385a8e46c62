package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/edusmart-auth/internal/logging"
	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/projection"
	"github.com/iliyamo/edusmart-auth/internal/queue"
	"github.com/iliyamo/edusmart-auth/internal/repository"
	"github.com/iliyamo/edusmart-auth/internal/rpc"
	"github.com/iliyamo/edusmart-auth/internal/service"
	"github.com/iliyamo/edusmart-auth/internal/testutil"
	"github.com/iliyamo/edusmart-auth/internal/token"
	"github.com/iliyamo/edusmart-auth/internal/uow"
)

const strongPassword = "P@ssw0rd1"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// profileService plays the downstream profile owner.  It answers on the
// gateway synchronously unless silent is set.
type profileService struct {
	gw *rpc.Gateway

	mu       sync.Mutex
	rejectOn map[string]bool // queue -> reply success=false
	silent   bool
	down     error
	creates  []queue.ProfileCreateRequest
	logins   []queue.ProfileLoginRequest
	names    map[string]model.UserInformation
}

func (p *profileService) Publish(_ context.Context, req rpc.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down != nil {
		return p.down
	}

	var reply any
	switch req.Queue {
	case queue.ProfileCreateQueue:
		var in queue.ProfileCreateRequest
		if err := json.Unmarshal(req.Body, &in); err != nil {
			return err
		}
		p.creates = append(p.creates, in)
		if !p.rejectOn[req.Queue] {
			p.names[in.UserID] = model.UserInformation{FirstName: in.FirstName, LastName: in.LastName}
		}
		reply = queue.ProfileCreateResponse{Success: !p.rejectOn[req.Queue], Message: "create"}
	case queue.ProfileLoginQueue:
		var in queue.ProfileLoginRequest
		if err := json.Unmarshal(req.Body, &in); err != nil {
			return err
		}
		p.logins = append(p.logins, in)
		n := p.names[in.UserID]
		reply = queue.ProfileLoginResponse{Success: !p.rejectOn[req.Queue], FirstName: n.FirstName, LastName: n.LastName}
	default:
		return errors.New("unexpected queue " + req.Queue)
	}
	if p.silent {
		return nil
	}
	body, _ := json.Marshal(reply)
	p.gw.Resolve(req.CorrelationID, body)
	return nil
}

func (p *profileService) set(f func(p *profileService)) {
	p.mu.Lock()
	f(p)
	p.mu.Unlock()
}

func (p *profileService) createCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creates)
}

func (p *profileService) lastCreate() queue.ProfileCreateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates[len(p.creates)-1]
}

type keyRecorder struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (k *keyRecorder) PublishSendKey(_ context.Context, ev queue.SendKeyEvent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return k.err
	}
	k.keys = append(k.keys, ev.Key)
	return nil
}

func (k *keyRecorder) last() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return ""
	}
	return k.keys[len(k.keys)-1]
}

type harness struct {
	svc      *service.AccountService
	db       *sql.DB
	docs     *projection.MemoryStore
	profiles *profileService
	keys     *keyRecorder
	clock    *clock
	codec    *token.Codec
	accounts *repository.AccountRepo
}

func newHarness(t *testing.T, tweak ...func(*service.Options)) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	docs := projection.NewMemoryStore()

	codec, err := token.NewCodec(token.Config{
		Key: []byte("0123456789abcdef0123456789abcdef"),
		IV:  []byte("fedcba9876543210"),
	})
	require.NoError(t, err)

	profiles := &profileService{
		rejectOn: map[string]bool{},
		names:    map[string]model.UserInformation{},
	}
	gw := rpc.NewGateway(profiles, 200*time.Millisecond, logging.Nop())
	profiles.gw = gw

	clk := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	keys := &keyRecorder{}
	opts := service.Options{
		BcryptCost:         bcrypt.MinCost,
		PasswordMinEntropy: 50,
		Actor:              "test",
		Now:                clk.Now,
	}
	for _, f := range tweak {
		f(&opts)
	}

	svc := service.NewAccountService(uow.New(db, docs), codec, rpc.NewProfileClient(gw, "", ""), keys, logging.Nop(), opts)
	_, err = svc.SeedRoles(context.Background())
	require.NoError(t, err)

	return &harness{
		svc:      svc,
		db:       db,
		docs:     docs,
		profiles: profiles,
		keys:     keys,
		clock:    clk,
		codec:    codec,
		accounts: repository.NewAccountRepo(db),
	}
}

func (h *harness) register(email string) (*service.RegisterResult, error) {
	return h.svc.Register(context.Background(), service.RegisterRequest{
		Email: email, Password: strongPassword, FirstName: "Ann", LastName: "Lee",
	})
}

// registerConfirmed registers email and redeems its token.
func (h *harness) registerConfirmed(t *testing.T, email string) string {
	t.Helper()
	res, err := h.register(email)
	require.NoError(t, err)
	_, err = h.svc.VerifyAccount(context.Background(), h.keys.last())
	require.NoError(t, err)
	return res.AccountID
}

func (h *harness) account(t *testing.T, id string) *model.Account {
	t.Helper()
	a, err := h.accounts.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
