package dirgate

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	enrollmentKeyPrefix      = "den"
	enrollmentRecordVersion1 = 1
)

// RedisEnrollmentStore is the reference [EnrollmentStore]: one record per
// principal DN, with the TOTP secret sealed at rest using
// XChaCha20-Poly1305 under a caller-supplied 32-byte key. Put overwrites
// unconditionally, so a rebind replaces the prior secret in a single write.
type RedisEnrollmentStore struct {
	redis   *redis.Client
	sealKey []byte
}

// NewRedisEnrollmentStore describes the newredisenrollmentstore operation and its observable behavior.
//
// NewRedisEnrollmentStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisEnrollmentStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisEnrollmentStore(redisClient *redis.Client, sealKey []byte) (*RedisEnrollmentStore, error) {
	if len(sealKey) != chacha20poly1305.KeySize {
		return nil, errors.New("enrollment seal key must be 32 bytes")
	}
	if _, err := chacha20poly1305.NewX(sealKey); err != nil {
		return nil, err
	}
	return &RedisEnrollmentStore{
		redis:   redisClient,
		sealKey: append([]byte(nil), sealKey...),
	}, nil
}

func (s *RedisEnrollmentStore) key(principalDN string) string {
	return enrollmentKeyPrefix + ":" + principalDN
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisEnrollmentStore) Get(ctx context.Context, principalDN string) (*EnrollmentRecord, error) {
	data, err := s.redis.Get(ctx, s.key(principalDN)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	return s.decode(principalDN, data)
}

// Put describes the put operation and its observable behavior.
//
// Put may return an error when input validation, dependency calls, or security checks fail.
// Put does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisEnrollmentStore) Put(ctx context.Context, principalDN string, record *EnrollmentRecord) error {
	encoded, err := s.encode(principalDN, record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(principalDN), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	return nil
}

// Enable describes the enable operation and its observable behavior.
//
// Enable may return an error when input validation, dependency calls, or security checks fail.
// Enable does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisEnrollmentStore) Enable(ctx context.Context, principalDN string) error {
	record, err := s.Get(ctx, principalDN)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrNotEnrolled
	}
	record.Enrolled = true
	return s.Put(ctx, principalDN, record)
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
// Delete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *RedisEnrollmentStore) Delete(ctx context.Context, principalDN string) error {
	if err := s.redis.Del(ctx, s.key(principalDN)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	return nil
}

// encode seals the secret and frames it with the enrolled flag and
// creation time. The principal DN is bound in as AEAD associated data, so
// a record copied between keys fails to open.
func (s *RedisEnrollmentStore) encode(principalDN string, record *EnrollmentRecord) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, record.Secret, []byte(principalDN))

	var buf bytes.Buffer
	buf.WriteByte(enrollmentRecordVersion1)

	var flags uint8
	if record.Enrolled {
		flags |= 1
	}
	buf.WriteByte(flags)

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if err := binary.Write(&buf, binary.BigEndian, createdAt.Unix()); err != nil {
		return nil, err
	}

	buf.Write(nonce)
	buf.Write(sealed)
	return buf.Bytes(), nil
}

func (s *RedisEnrollmentStore) decode(principalDN string, data []byte) (*EnrollmentRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != enrollmentRecordVersion1 {
		return nil, errors.New("invalid enrollment record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var createdAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(reader, nonce); err != nil {
		return nil, err
	}
	sealed, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return nil, err
	}
	secret, err := aead.Open(nil, nonce, sealed, []byte(principalDN))
	if err != nil {
		return nil, fmt.Errorf("%w: unseal failed", ErrEnrollmentUnavailable)
	}

	return &EnrollmentRecord{
		Secret:    secret,
		Enrolled:  flags&1 != 0,
		CreatedAt: time.Unix(createdAt, 0),
	}, nil
}
