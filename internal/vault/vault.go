package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// CredentialType enumerates how a provider credential was obtained.
type CredentialType string

const (
	TypeOAuth    CredentialType = "oauth"
	TypeAPIKey   CredentialType = "api_key"
	TypeCookie   CredentialType = "cookie"
	TypeKeychain CredentialType = "keychain"
)

func validCredentialType(t CredentialType) bool {
	switch t {
	case TypeOAuth, TypeAPIKey, TypeCookie, TypeKeychain:
		return true
	}
	return false
}

// Credential is a decrypted record as returned by Get.
type Credential struct {
	Provider  string
	Type      CredentialType
	Data      map[string]any
	Scopes    []string
	UserLabel string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is credential metadata without any decryption.
type Summary struct {
	Provider  string
	Type      CredentialType
	UserLabel string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Vault encrypts credential payloads before they touch the database. The
// master key is supplied by the caller and never persisted.
type Vault struct {
	db     *sql.DB
	key    []byte
	logger *slog.Logger
}

// New validates the master key and wraps the shared database handle. The
// credentials schema is owned by the store's migrations.
func New(db *sql.DB, masterKey []byte, logger *slog.Logger) (*Vault, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("vault master key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	if logger == nil {
		logger = slog.Default()
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Vault{db: db, key: key, logger: logger}, nil
}

// Store encrypts and inserts a new credential. A second write for the same
// provider fails with ErrCredentialExists.
func (v *Vault) Store(ctx context.Context, provider string, credType CredentialType, data map[string]any, opts ...Option) error {
	if provider == "" {
		return fmt.Errorf("provider is empty")
	}
	if !validCredentialType(credType) {
		return fmt.Errorf("bad credential type %q", credType)
	}

	var exists int
	err := v.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE provider = ?`, provider).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("provider %s: %w", provider, ErrCredentialExists)
	}

	nonce, ciphertext, scopesJSON, err := v.seal(data, opts)
	if err != nil {
		return err
	}
	o := applyOptions(opts)
	now := time.Now().UTC().UnixMilli()
	_, err = v.db.ExecContext(ctx,
		`INSERT INTO credentials (provider, credential_type, data, nonce, scopes, user_label, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, 0), ?, ?)`,
		provider, string(credType), ciphertext, nonce, scopesJSON, o.userLabel, unixOrZero(o.expiresAt), now, now)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	v.audit(ctx, provider, "store")
	return nil
}

// Get fetches and decrypts one credential. A tampered or corrupted record
// surfaces as ErrDecryptionFailed, never as silently wrong data.
func (v *Vault) Get(ctx context.Context, provider string) (*Credential, error) {
	row := v.db.QueryRowContext(ctx,
		`SELECT provider, credential_type, data, nonce, COALESCE(scopes, ''), COALESCE(user_label, ''),
			COALESCE(expires_at, 0), created_at, updated_at
		 FROM credentials WHERE provider = ?`, provider)

	var c Credential
	var credType, scopesJSON string
	var ciphertext, nonce []byte
	var expires, created, updated int64
	err := row.Scan(&c.Provider, &credType, &ciphertext, &nonce, &scopesJSON, &c.UserLabel, &expires, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provider %s: %w", provider, ErrCredentialNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("provider %s: stored nonce has length %d: %w", provider, len(nonce), ErrDecryptionFailed)
	}

	plaintext, err := Decrypt(v.key, nonce, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider, err)
	}
	if err := json.Unmarshal(plaintext, &c.Data); err != nil {
		return nil, fmt.Errorf("decode credential data: %w", err)
	}
	if scopesJSON != "" {
		if err := json.Unmarshal([]byte(scopesJSON), &c.Scopes); err != nil {
			return nil, fmt.Errorf("decode credential scopes: %w", err)
		}
	}
	c.Type = CredentialType(credType)
	if expires != 0 {
		c.ExpiresAt = time.UnixMilli(expires).UTC()
	}
	c.CreatedAt = time.UnixMilli(created).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	v.audit(ctx, provider, "get")
	return &c, nil
}

// Update re-encrypts a credential's payload under a fresh nonce. Nonces are
// never reused across versions of a record.
func (v *Vault) Update(ctx context.Context, provider string, data map[string]any, opts ...Option) error {
	nonce, ciphertext, _, err := v.seal(data, nil)
	if err != nil {
		return err
	}
	o := applyOptions(opts)
	res, err := v.db.ExecContext(ctx,
		`UPDATE credentials SET data = ?, nonce = ?, expires_at = COALESCE(NULLIF(?, 0), expires_at), updated_at = ?
		 WHERE provider = ?`,
		ciphertext, nonce, unixOrZero(o.expiresAt), time.Now().UTC().UnixMilli(), provider)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("provider %s: %w", provider, ErrCredentialNotFound)
	}
	v.audit(ctx, provider, "update")
	return nil
}

// Delete removes a credential.
func (v *Vault) Delete(ctx context.Context, provider string) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM credentials WHERE provider = ?`, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("provider %s: %w", provider, ErrCredentialNotFound)
	}
	v.audit(ctx, provider, "delete")
	return nil
}

// List returns metadata summaries for every stored credential, sorted by
// provider. Nothing is decrypted.
func (v *Vault) List(ctx context.Context) ([]Summary, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT provider, credential_type, COALESCE(user_label, ''), COALESCE(expires_at, 0), created_at, updated_at
		 FROM credentials ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var credType string
		var expires, created, updated int64
		if err := rows.Scan(&s.Provider, &credType, &s.UserLabel, &expires, &created, &updated); err != nil {
			return nil, err
		}
		s.Type = CredentialType(credType)
		if expires != 0 {
			s.ExpiresAt = time.UnixMilli(expires).UTC()
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		s.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (v *Vault) seal(data map[string]any, opts []Option) (nonce, ciphertext []byte, scopesJSON string, err error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, nil, "", fmt.Errorf("encode credential data: %w", err)
	}
	nonce, ciphertext, err = Encrypt(v.key, plaintext)
	if err != nil {
		return nil, nil, "", err
	}
	o := applyOptions(opts)
	if len(o.scopes) > 0 {
		raw, err := json.Marshal(o.scopes)
		if err != nil {
			return nil, nil, "", fmt.Errorf("encode scopes: %w", err)
		}
		scopesJSON = string(raw)
	}
	return nonce, ciphertext, scopesJSON, nil
}

// audit appends a best-effort audit row; failures are logged, never returned,
// so an audit problem cannot fail a credential operation.
func (v *Vault) audit(ctx context.Context, provider, action string) {
	_, err := v.db.ExecContext(ctx,
		`INSERT INTO audit_log (provider, action, created_at) VALUES (?, ?, ?)`,
		provider, action, time.Now().UTC().UnixMilli())
	if err != nil {
		v.logger.Warn("vault audit write failed", "provider", provider, "action", action, "error", err)
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

// Option customizes Store and Update.
type Option func(*options)

type options struct {
	scopes    []string
	userLabel string
	expiresAt time.Time
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithScopes records the credential's granted scopes.
func WithScopes(scopes []string) Option {
	return func(o *options) { o.scopes = scopes }
}

// WithUserLabel attaches a human label to the record.
func WithUserLabel(label string) Option {
	return func(o *options) { o.userLabel = label }
}

// WithExpiry records when the credential expires.
func WithExpiry(t time.Time) Option {
	return func(o *options) { o.expiresAt = t }
}
