package dirgate

import (
	"context"
	"encoding/base32"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memDirectory is an in-memory DirectoryClient for engine tests. Setting
// unavailable makes every call fail as if the directory were unreachable.
// lookups counts Lookup calls so tests can assert an operation never
// contacted the directory.
type memDirectory struct {
	mu          sync.Mutex
	users       map[string]*memUser
	ous         map[string]string
	unavailable bool
	lookups     int
}

type memUser struct {
	password string
	entry    DirectoryEntry
	admin    bool
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		users: map[string]*memUser{},
		ous:   map[string]string{},
	}
}

func (d *memDirectory) put(username, password, dn string, admin bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username] = &memUser{
		password: password,
		admin:    admin,
		entry: DirectoryEntry{
			DN:       dn,
			Username: username,
			Enabled:  true,
		},
	}
}

func (d *memDirectory) setUnavailable(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unavailable = v
}

func (d *memDirectory) Bind(_ context.Context, username, password string) (*DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return nil, ErrDirectoryUnavailable
	}
	u, ok := d.users[username]
	if !ok || u.password != password || !u.entry.Enabled {
		return nil, ErrInvalidCredentials
	}
	entry := u.entry
	return &entry, nil
}

func (d *memDirectory) Lookup(_ context.Context, username string) (*DirectoryEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	if d.unavailable {
		return nil, ErrDirectoryUnavailable
	}
	u, ok := d.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	entry := u.entry
	return &entry, nil
}

func (d *memDirectory) lookupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookups
}

func (d *memDirectory) IsAdmin(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return false, ErrDirectoryUnavailable
	}
	u, ok := d.users[username]
	return ok && u.admin, nil
}

func (d *memDirectory) SetPassword(_ context.Context, dn, newPassword string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	for _, u := range d.users {
		if u.entry.DN == dn {
			u.password = newPassword
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (d *memDirectory) SetEnabled(_ context.Context, dn string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	for _, u := range d.users {
		if u.entry.DN == dn {
			u.entry.Enabled = enabled
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (d *memDirectory) CreateUser(_ context.Context, user NewUser) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	if _, ok := d.users[user.Username]; ok {
		return errors.New("user already exists")
	}
	d.users[user.Username] = &memUser{
		password: user.Password,
		entry: DirectoryEntry{
			DN:          "CN=" + user.DisplayName + "," + user.OUDN,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Mail:        user.Mail,
			Enabled:     true,
		},
	}
	return nil
}

func (d *memDirectory) UpdateUser(_ context.Context, dn string, changes map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	for _, u := range d.users {
		if u.entry.DN == dn {
			if v, ok := changes["displayName"]; ok {
				u.entry.DisplayName = v
			}
			if v, ok := changes["mail"]; ok {
				u.entry.Mail = v
			}
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (d *memDirectory) DeleteUser(_ context.Context, dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	for username, u := range d.users {
		if u.entry.DN == dn {
			delete(d.users, username)
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (d *memDirectory) MoveUser(_ context.Context, dn, targetOUDN string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	for _, u := range d.users {
		if u.entry.DN == dn {
			rdn := strings.SplitN(dn, ",", 2)[0]
			u.entry.DN = rdn + "," + targetOUDN
			return nil
		}
	}
	return ErrInvalidCredentials
}

func (d *memDirectory) CreateOU(_ context.Context, name, parentDN, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	dn := "OU=" + name + "," + parentDN
	if _, ok := d.ous[dn]; ok {
		return errors.New("ou already exists")
	}
	d.ous[dn] = description
	return nil
}

func (d *memDirectory) UpdateOU(_ context.Context, dn, name, description string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	desc, ok := d.ous[dn]
	if !ok {
		return errors.New("ou not found")
	}
	if name != "" {
		delete(d.ous, dn)
		if parts := strings.SplitN(dn, ",", 2); len(parts) == 2 {
			dn = "OU=" + name + "," + parts[1]
		}
	}
	if description != "" {
		desc = description
	}
	d.ous[dn] = desc
	return nil
}

func (d *memDirectory) DeleteOU(_ context.Context, dn string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	if _, ok := d.ous[dn]; !ok {
		return errors.New("ou not found")
	}
	delete(d.ous, dn)
	return nil
}

func (d *memDirectory) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unavailable {
		return ErrDirectoryUnavailable
	}
	return nil
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("test-signing-key-0123456789abcdef")
	cfg.Audit.Enabled = false
	return cfg
}

func testSealKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *memDirectory, *redis.Client, func()) {
	t.Helper()
	return newTestEngineFull(t, mutate, nil)
}

func newTestEngineWithSink(t *testing.T, sink AuditSink) (*Engine, *memDirectory, *redis.Client, func()) {
	t.Helper()
	return newTestEngineFull(t, func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 64
	}, sink)
}

func newTestEngineFull(t *testing.T, mutate func(*Config), sink AuditSink) (*Engine, *memDirectory, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	dir := newMemDirectory()
	dir.put("alice", "correct-horse", "CN=Alice,OU=Staff,DC=example,DC=org", true)
	dir.put("bob", "correct-horse", "CN=Bob,OU=Staff,DC=example,DC=org", false)

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithEnrollmentSealKey(testSealKey())
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	done := func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
	return engine, dir, rdb, done
}

// codeForSecret computes the current code for a base32 setup secret,
// standing in for the admin's authenticator app.
func codeForSecret(t *testing.T, secretBase32 string, cfg TOTPConfig, at time.Time) string {
	t.Helper()

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	code, err := hotpCode(secret, at.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

// enrollAdmin walks the full first-login path for alice and returns the
// base32 secret plus the admin session token.
func enrollAdmin(t *testing.T, engine *Engine) (string, string) {
	t.Helper()

	res, err := engine.Login(context.Background(), "alice", "correct-horse", RoleAdmin)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.OTPRequired || !res.SetupRequired {
		t.Fatalf("expected setup-required challenge, got %+v", res)
	}

	setup, err := engine.SetupTOTP(context.Background(), res.ChallengeID)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}

	code := codeForSecret(t, setup.Secret, engine.config.TOTP, time.Now())
	verified, err := engine.VerifyLogin(context.Background(), res.ChallengeID, code)
	if err != nil {
		t.Fatalf("VerifyLogin failed: %v", err)
	}
	if verified.Token == "" {
		t.Fatal("expected admin session token")
	}
	return setup.Secret, verified.Token
}
