// Package workspace assembles the token store, refresh coordinator, API
// client, tenant cache and session lifecycle into one per-process context.
package workspace

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-tenant-access/authapi"
	"github.com/jrsteele09/go-tenant-access/cache"
	"github.com/jrsteele09/go-tenant-access/client"
	"github.com/jrsteele09/go-tenant-access/internal/config"
	"github.com/jrsteele09/go-tenant-access/internal/errors"
	"github.com/jrsteele09/go-tenant-access/refresh"
	"github.com/jrsteele09/go-tenant-access/session"
	"github.com/jrsteele09/go-tenant-access/token"
	"github.com/jrsteele09/go-tenant-access/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resource names served by the HR backend.
const (
	ResourceEmployees     = "employees"
	ResourceDepartments   = "departments"
	ResourcePayroll       = "payroll"
	ResourceLeaveRequests = "leave-requests"
)

// Record is one item of a resource collection as returned by the backend.
type Record map[string]any

type Context struct {
	cfg         config.Config
	store       *token.Store
	api         *authapi.Client
	coordinator *refresh.Coordinator
	client      *client.Client
	cache       *cache.Cache
	lifecycle   *session.Lifecycle
	logger      zerolog.Logger
}

type options struct {
	httpClient *http.Client
	persister  token.Persister
	nowFunc    func() time.Time
	roles      users.RoleLookup
	logger     *zerolog.Logger
}

type Option func(*options)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// WithPersister overrides the persister selected by configuration.
func WithPersister(persister token.Persister) Option {
	return func(o *options) {
		o.persister = persister
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

func WithRoleLookup(roles users.RoleLookup) Option {
	return func(o *options) {
		o.roles = roles
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

func New(cfg config.Config, opts ...Option) (*Context, error) {
	o := options{nowFunc: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.GetHTTPTimeout()}
	}
	persister := o.persister
	if persister == nil {
		var err error
		if persister, err = NewPersister(cfg); err != nil {
			return nil, err
		}
	}

	store := token.NewStore(persister,
		token.WithNowFunc(o.nowFunc),
		token.WithMaxAge(cfg.GetTokenMaxAge()),
		token.WithLogger(logger),
	)
	api := authapi.New(cfg.GetBaseURL(), authapi.WithHTTPClient(httpClient), authapi.WithLogger(logger))
	coordinator := refresh.New(store, api, refresh.WithLogger(logger))
	c := cache.New(cache.WithNowFunc(o.nowFunc), cache.WithLogger(logger))

	lifecycleOptions := []session.Option{
		session.WithRefreshWindow(cfg.GetRefreshWindow()),
		session.WithLogger(logger),
	}
	if o.roles != nil {
		lifecycleOptions = append(lifecycleOptions, session.WithRoleLookup(o.roles))
	}

	return &Context{
		cfg:         cfg,
		store:       store,
		api:         api,
		coordinator: coordinator,
		client: client.New(cfg.GetBaseURL(), coordinator,
			client.WithHTTPClient(httpClient),
			client.WithRefreshWindow(cfg.GetRefreshWindow()),
			client.WithLogger(logger),
		),
		cache:     c,
		lifecycle: session.New(api, store, coordinator, c, lifecycleOptions...),
		logger:    logger,
	}, nil
}

// NewPersister builds the token persister named by configuration.
func NewPersister(cfg config.TokenStoreConfig) (token.Persister, error) {
	switch kind := cfg.GetTokenStoreKind(); kind {
	case config.StoreMemory:
		return token.NewMemoryPersister(), nil
	case config.StoreKeyring:
		return token.NewKeyringPersister(cfg.GetKeyringService(), cfg.GetKeyringAccount()), nil
	case config.StoreFile:
		var fileOptions []token.FilePersisterOption
		if hashKey := cfg.GetCookieHashKey(); hashKey != "" {
			fileOptions = append(fileOptions, token.WithSecureCookie([]byte(hashKey), []byte(cfg.GetCookieBlockKey()), cfg.GetTokenMaxAge()))
		}
		return token.NewFilePersister(cfg.GetTokenFile(), fileOptions...), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", kind)
	}
}

func (w *Context) Session() *session.Lifecycle {
	return w.lifecycle
}

func (w *Context) Cache() *cache.Cache {
	return w.cache
}

func (w *Context) Client() *client.Client {
	return w.client
}

func (w *Context) Coordinator() *refresh.Coordinator {
	return w.coordinator
}

func (w *Context) Store() *token.Store {
	return w.store
}

// ActiveTenant is the tenant resource calls are made for.
func (w *Context) ActiveTenant() (string, error) {
	s, ok := w.lifecycle.Current()
	if !ok {
		return "", errors.ErrNotAuthenticated
	}
	return s.TenantID, nil
}

// Fetch loads GET /{resource} for the active tenant into the cache and
// returns the settled entry. Its Data is a []Record.
func (w *Context) Fetch(ctx context.Context, resource string) (cache.Entry, error) {
	tenantID, err := w.ActiveTenant()
	if err != nil {
		return cache.Entry{}, err
	}
	scoped := w.cache.Scoped(w.lifecycle.Scope())
	entry := scoped.Fetch(ctx, tenantID, resource, func(ctx context.Context) (any, error) {
		var records []Record
		if err := w.client.GetJSON(ctx, tenantID, "/"+resource, &records); err != nil {
			return nil, err
		}
		return records, nil
	})
	return entry, entry.Err
}

// Read returns the cached entry for the active tenant without loading.
func (w *Context) Read(resource string) (cache.Entry, error) {
	tenantID, err := w.ActiveTenant()
	if err != nil {
		return cache.Entry{}, err
	}
	return w.cache.Scoped(w.lifecycle.Scope()).Read(tenantID, resource), nil
}

// Invalidate drops cached resources of the active tenant; all of them when
// none are named.
func (w *Context) Invalidate(resources ...string) error {
	tenantID, err := w.ActiveTenant()
	if err != nil {
		return err
	}
	w.cache.Scoped(w.lifecycle.Scope()).Invalidate(tenantID, resources...)
	return nil
}

func (w *Context) Records(ctx context.Context, resource string) ([]Record, error) {
	entry, err := w.Fetch(ctx, resource)
	if err != nil {
		return nil, err
	}
	records, _ := cache.DataAs[[]Record](entry)
	return records, nil
}

func (w *Context) Employees(ctx context.Context) ([]Record, error) {
	return w.Records(ctx, ResourceEmployees)
}

func (w *Context) Departments(ctx context.Context) ([]Record, error) {
	return w.Records(ctx, ResourceDepartments)
}

func (w *Context) Payroll(ctx context.Context) ([]Record, error) {
	return w.Records(ctx, ResourcePayroll)
}

func (w *Context) LeaveRequests(ctx context.Context) ([]Record, error) {
	return w.Records(ctx, ResourceLeaveRequests)
}

// CreateEmployee posts employee for the active tenant and invalidates the
// tenant's cached employee list.
func (w *Context) CreateEmployee(ctx context.Context, employee any) (Record, error) {
	tenantID, err := w.ActiveTenant()
	if err != nil {
		return nil, err
	}
	var created Record
	if err := w.client.SendJSON(ctx, http.MethodPost, tenantID, "/"+ResourceEmployees, employee, &created); err != nil {
		return nil, err
	}
	w.cache.Invalidate(tenantID, ResourceEmployees)
	return created, nil
}
