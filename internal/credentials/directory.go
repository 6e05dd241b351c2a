// Package credentials checks administrator logins against the credential
// directory document kept in the remote store.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/docstore"
	"mom-admin-api/internal/models"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactive           = errors.New("account is inactive")
)

const (
	DefaultPath     = "config/credentials"
	DefaultCacheTTL = 5 * time.Minute

	directoryKey = "directory"
)

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("mom-admin-unknown-user"), bcrypt.DefaultCost)

// Directory authenticates usernames against the credential document.
// The loaded document is kept for CacheTTL and dropped on pushed updates.
type Directory struct {
	store    docstore.Store
	path     string
	fallback models.CredentialDirectory
	loaded   cache.Cache[models.CredentialDirectory]
	log      zerolog.Logger

	mu          sync.Mutex
	unsubscribe func()
	seedOnce    sync.Once
}

// New builds a Directory reading path from store. fallback may be nil.
// When the store cannot be read, logins are checked against fallback.
// When the document does not exist yet, fallback is written to the store
// once as the initial directory.
func New(store docstore.Store, path string, ttl time.Duration, fallback models.CredentialDirectory, log zerolog.Logger) *Directory {
	if path == "" {
		path = DefaultPath
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	d := &Directory{
		store:    store,
		path:     path,
		fallback: fallback.Normalized(),
		loaded:   cache.New[models.CredentialDirectory](cache.Options{MaxSize: 1, DefaultTTL: ttl}),
		log:      log.With().Str("component", "credentials").Logger(),
	}
	d.unsubscribe = store.Subscribe(path, func(json.RawMessage) { d.Invalidate() })
	return d
}

// Authenticate returns the credential for username when password matches
// its bcrypt hash and the account is active.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (models.Credential, error) {
	key := models.NormalizeUsername(username)
	if key == "" || password == "" {
		return models.Credential{}, ErrInvalidCredentials
	}

	dir, err := d.load(ctx)
	if err != nil {
		return models.Credential{}, err
	}
	cred, ok := dir[key]
	if !ok {
		// unknown users pay the same hash cost as a wrong password
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.Credential{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.Password), []byte(password)); err != nil {
		return models.Credential{}, ErrInvalidCredentials
	}
	if !cred.Active {
		return models.Credential{}, ErrInactive
	}
	return cred, nil
}

func (d *Directory) load(ctx context.Context) (models.CredentialDirectory, error) {
	if dir, ok := d.loaded.Get(directoryKey); ok {
		return dir, nil
	}

	var raw models.CredentialDirectory
	err := docstore.ReadInto(ctx, d.store, d.path, &raw)
	switch {
	case err == nil:
		dir := raw.Normalized()
		d.loaded.Set(directoryKey, dir)
		return dir, nil
	case errors.Is(err, docstore.ErrNotFound):
		return d.seed(ctx), nil
	case len(d.fallback) > 0:
		d.log.Warn().Err(err).Msg("credential directory unavailable; using fallback list")
		return d.fallback, nil
	default:
		return nil, fmt.Errorf("load credentials: %w", err)
	}
}

// seed writes the fallback list as the initial directory. Without a
// fallback the directory stays empty and every login is rejected.
func (d *Directory) seed(ctx context.Context) models.CredentialDirectory {
	if len(d.fallback) == 0 {
		return models.CredentialDirectory{}
	}
	d.seedOnce.Do(func() {
		if err := d.store.Write(ctx, d.path, d.fallback); err != nil {
			d.log.Warn().Err(err).Str("path", d.path).Msg("credential directory not seeded")
			return
		}
		d.log.Info().Str("path", d.path).Int("users", len(d.fallback)).Msg("created credential directory from seed file")
	})
	return d.fallback
}

// Invalidate drops the loaded directory so the next login reads it again.
func (d *Directory) Invalidate() {
	d.loaded.Delete(directoryKey)
}

// Close stops listening for pushed updates.
func (d *Directory) Close() {
	d.mu.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// LoadFallback reads a credential list from a YAML, JSON or TOML file
// keyed by username. An empty path yields an empty list.
func LoadFallback(path string) (models.CredentialDirectory, error) {
	if path == "" {
		return models.CredentialDirectory{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read credential fallback %s: %w", path, err)
	}
	var dir models.CredentialDirectory
	if err := v.Unmarshal(&dir); err != nil {
		return nil, fmt.Errorf("decode credential fallback %s: %w", path, err)
	}
	return dir.Normalized(), nil
}
