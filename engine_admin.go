package dirgate

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Privileged mutations. Every operation in this file runs behind
// [Engine.AuthorizeAction]: without a live step-up window nothing below
// executes and the caller gets [ErrStepUpRequired].

// ResetUserPassword writes a new directory password for the target user.
func (e *Engine) ResetUserPassword(ctx context.Context, session *Session, username, newPassword string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}
	if newPassword == "" {
		return errors.New("empty password")
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := e.directory.SetPassword(ctx, entry.DN, newPassword); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionPasswordReset,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    entry.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	// A password reset invalidates any lockout accumulated on the old one.
	if err := e.lockout.RecordSuccess(ctx, entry.Username); err != nil {
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionPasswordReset,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    entry.Username,
		Success:   true,
	})
	return nil
}

// SetUserEnabled enables or disables the target directory account.
func (e *Engine) SetUserEnabled(ctx context.Context, session *Session, username string, enabled bool) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := e.directory.SetEnabled(ctx, entry.DN, enabled); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionUserStatus,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    entry.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionUserStatus,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    entry.Username,
		Success:   true,
		Before:    boolString(entry.Enabled),
		After:     boolString(enabled),
	})
	return nil
}

// CreateUser provisions a new directory account under the requested OU.
// The initial password is written through to the directory and never
// appears in the audit trail.
func (e *Engine) CreateUser(ctx context.Context, session *Session, user NewUser) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}
	if user.Username == "" || user.Password == "" {
		return errors.New("username and password required")
	}

	if err := e.directory.CreateUser(ctx, user); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionUserCreate,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    user.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionUserCreate,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    user.Username,
		Success:   true,
		Metadata:  map[string]string{"ou": user.OUDN},
	})
	return nil
}

// UpdateUser replaces directory attributes on the target account.
func (e *Engine) UpdateUser(ctx context.Context, session *Session, username string, changes map[string]string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := e.directory.UpdateUser(ctx, entry.DN, changes); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionUserUpdate,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    entry.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	changed := make([]string, 0, len(changes))
	for attr := range changes {
		changed = append(changed, attr)
	}
	sort.Strings(changed)
	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionUserUpdate,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    entry.Username,
		Success:   true,
		Metadata:  map[string]string{"attributes": strings.Join(changed, ",")},
	})
	return nil
}

// DeleteUser removes the target account from the directory.
func (e *Engine) DeleteUser(ctx context.Context, session *Session, username string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := e.directory.DeleteUser(ctx, entry.DN); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionUserDelete,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    entry.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionUserDelete,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    entry.Username,
		Success:   true,
	})
	return nil
}

// MoveUser relocates the target account under another organizational unit.
func (e *Engine) MoveUser(ctx context.Context, session *Session, username, targetOUDN string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}
	if targetOUDN == "" {
		return errors.New("target OU required")
	}

	entry, err := e.directory.Lookup(ctx, username)
	if err != nil {
		return err
	}
	if err := e.directory.MoveUser(ctx, entry.DN, targetOUDN); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionUserMove,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    entry.Username,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionUserMove,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    entry.Username,
		Success:   true,
		Before:    entry.DN,
		After:     targetOUDN,
	})
	return nil
}

// CreateOU creates an organizational unit under parentDN.
func (e *Engine) CreateOU(ctx context.Context, session *Session, name, parentDN, description string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	if err := e.directory.CreateOU(ctx, name, parentDN, description); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionOUCreate,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    name,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionOUCreate,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    name,
		Success:   true,
		Metadata:  map[string]string{"parent": parentDN},
	})
	return nil
}

// UpdateOU renames an organizational unit and/or replaces its description.
func (e *Engine) UpdateOU(ctx context.Context, session *Session, dn, name, description string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	if err := e.directory.UpdateOU(ctx, dn, name, description); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionOUUpdate,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    dn,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionOUUpdate,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    dn,
		Success:   true,
	})
	return nil
}

// DeleteOU removes an organizational unit.
func (e *Engine) DeleteOU(ctx context.Context, session *Session, dn string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return err
	}

	if err := e.directory.DeleteOU(ctx, dn); err != nil {
		e.emitAudit(ctx, AuditEvent{
			Action:    auditActionOUDelete,
			Actor:     session.Username,
			ActorRole: string(session.Role),
			Target:    dn,
			Success:   false,
			Error:     err.Error(),
		})
		return err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionOUDelete,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    dn,
		Success:   true,
	})
	return nil
}

// GetConfig reads a config key. Reads are not gated.
func (e *Engine) GetConfig(ctx context.Context, session *Session, key string) (string, error) {
	if e == nil || e.configStore == nil {
		return "", ErrEngineNotReady
	}
	if session == nil || session.Role != RoleAdmin {
		return "", ErrNoPermission
	}
	return e.configStore.Get(ctx, key)
}

// ConfigHistory returns the most recent versions of a config key, newest
// first. Reads are not gated.
func (e *Engine) ConfigHistory(ctx context.Context, session *Session, key string, limit int) ([]ConfigVersion, error) {
	if e == nil || e.configStore == nil {
		return nil, ErrEngineNotReady
	}
	if session == nil || session.Role != RoleAdmin {
		return nil, ErrNoPermission
	}
	return e.configStore.History(ctx, key, limit)
}

// WriteConfig sets a config key to a new versioned value.
func (e *Engine) WriteConfig(ctx context.Context, session *Session, key, value string) (int64, error) {
	if e == nil || e.configStore == nil {
		return 0, ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return 0, err
	}

	before, err := e.configStore.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrConfigKeyNotFound) {
		return 0, err
	}

	version, err := e.configStore.Set(ctx, key, value, session.Username)
	if err != nil {
		return 0, err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionConfigWrite,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    key,
		Success:   true,
		Before:    before,
		After:     value,
		Metadata:  map[string]string{"version": strconv.FormatInt(version, 10)},
	})
	return version, nil
}

// RollbackConfig restores a config key to a historical version. The
// restore is itself a new version, so history stays append-only.
func (e *Engine) RollbackConfig(ctx context.Context, session *Session, key string, version int64) (string, error) {
	if e == nil || e.configStore == nil {
		return "", ErrEngineNotReady
	}
	if err := e.AuthorizeAction(ctx, session); err != nil {
		return "", err
	}

	before, err := e.configStore.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrConfigKeyNotFound) {
		return "", err
	}

	restored, err := e.configStore.Rollback(ctx, key, version)
	if err != nil {
		return "", err
	}

	e.emitAudit(ctx, AuditEvent{
		Action:    auditActionConfigRollback,
		Actor:     session.Username,
		ActorRole: string(session.Role),
		Target:    key,
		Success:   true,
		Before:    before,
		After:     restored,
		Metadata:  map[string]string{"restored_version": strconv.FormatInt(version, 10)},
	})
	return restored, nil
}
