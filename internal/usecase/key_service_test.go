package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"field-protection-service/internal/domain"
)

// mockKeyRepository はインメモリで鍵を保持するテスト用リポジトリ。
type mockKeyRepository struct {
	mu        sync.Mutex
	keys      []*domain.FieldEncryptionKey
	findErr   error
	rotateErr error
	touched   map[string]time.Time
	seq       int
}

func newMockKeyRepository() *mockKeyRepository {
	return &mockKeyRepository{touched: map[string]time.Time{}}
}

func (m *mockKeyRepository) Create(ctx context.Context, key *domain.FieldEncryptionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key.ID = "id-" + key.KeyIdentifier
	m.keys = append(m.keys, key)
	return nil
}

func (m *mockKeyRepository) Rotate(ctx context.Context, key *domain.FieldEncryptionKey) error {
	if m.rotateErr != nil {
		return m.rotateErr
	}
	key.IsActive = true
	if err := m.Create(ctx, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k != key {
			k.IsActive = false
		}
	}
	return nil
}

func (m *mockKeyRepository) FindLatestActive(ctx context.Context) (*domain.FieldEncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := len(m.keys) - 1; i >= 0; i-- {
		if m.keys[i].IsActive {
			return m.keys[i], nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) FindByKeyIdentifier(ctx context.Context, keyIdentifier string) (*domain.FieldEncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, k := range m.keys {
		if k.KeyIdentifier == keyIdentifier {
			return k, nil
		}
	}
	return nil, nil
}

func (m *mockKeyRepository) FindAll(ctx context.Context) ([]*domain.FieldEncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.FieldEncryptionKey(nil), m.keys...), m.findErr
}

func (m *mockKeyRepository) TouchLastUsed(ctx context.Context, id string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = usedAt
	return nil
}

func (m *mockKeyRepository) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.keys {
		if k.IsActive {
			n++
		}
	}
	return n
}

// mockKeyWrapper はプレフィックスを付けるだけのテスト用ラッパー。
type mockKeyWrapper struct {
	encryptErr error
	decryptErr error
}

func (m *mockKeyWrapper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	return append([]byte("wrapped:"), plaintext...), nil
}

func (m *mockKeyWrapper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	return ciphertext[len("wrapped:"):], nil
}

// recordingMetrics は記録されたイベントを保持する。
type recordingMetrics struct {
	mu        sync.Mutex
	keyEvents []string
	cipherOps []string
	decisions []bool
}

func (r *recordingMetrics) CipherOperation(operation, dataType string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "success"
	if err != nil {
		result = "error"
	}
	r.cipherOps = append(r.cipherOps, operation+"/"+result)
}

func (r *recordingMetrics) AccessDecision(resourceType, action string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, allowed)
}

func (r *recordingMetrics) KeyEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyEvents = append(r.keyEvents, event)
}

func TestKeyService_GetActiveKey_GeneratesOnDemand(t *testing.T) {
	repo := newMockKeyRepository()
	metrics := &recordingMetrics{}
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, metrics)
	fixed := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	key, err := svc.GetActiveKey(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key.Key) != keySize {
		t.Errorf("want %d-byte key, got %d", keySize, len(key.Key))
	}
	if len(repo.keys) != 1 {
		t.Fatalf("want 1 stored key, got %d", len(repo.keys))
	}

	stored := repo.keys[0]
	if stored.KeyIdentifier != key.KeyIdentifier {
		t.Errorf("identifier mismatch: %s != %s", stored.KeyIdentifier, key.KeyIdentifier)
	}
	if !stored.IsActive {
		t.Error("want generated key to be active")
	}
	// 保存されるのはラップ済みの鍵のみ
	if string(stored.EncryptedKey) != "wrapped:"+string(key.Key) {
		t.Error("want stored key to be wrapped")
	}
	if want := fixed.Add(DefaultRotationPeriod); !stored.RotationDate.Equal(want) {
		t.Errorf("want rotation date %v, got %v", want, stored.RotationDate)
	}
	if _, ok := repo.touched[stored.ID]; !ok {
		t.Error("want last_used_at to be recorded")
	}
	if len(metrics.keyEvents) != 1 || metrics.keyEvents[0] != "generated" {
		t.Errorf("want generated event, got %v", metrics.keyEvents)
	}

	// 2回目は既存の鍵を返す
	again, err := svc.GetActiveKey(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.KeyIdentifier != key.KeyIdentifier {
		t.Errorf("want same key, got %s", again.KeyIdentifier)
	}
	if len(repo.keys) != 1 {
		t.Errorf("want no extra key, got %d", len(repo.keys))
	}
}

func TestKeyService_GetActiveKey_Concurrent(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{}, time.Hour, nil)

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := svc.GetActiveKey(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = key.KeyIdentifier
		}(i)
	}
	wg.Wait()

	if len(repo.keys) != 1 {
		t.Fatalf("want exactly 1 generated key, got %d", len(repo.keys))
	}
	for _, id := range ids {
		if id != repo.keys[0].KeyIdentifier {
			t.Errorf("want %s, got %s", repo.keys[0].KeyIdentifier, id)
		}
	}
}

func TestKeyService_GetActiveKey_RepositoryError(t *testing.T) {
	repo := newMockKeyRepository()
	repo.findErr = errors.New("db down")
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, nil)

	if _, err := svc.GetActiveKey(context.Background()); err == nil {
		t.Fatal("want error, got nil")
	}
	if len(repo.keys) != 0 {
		t.Error("want no key generated on repository error")
	}
}

func TestKeyService_GetKeyByIdentifier(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, nil)
	ctx := context.Background()

	first, err := svc.GetActiveKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RotateActiveKey(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 無効化された鍵も識別子で取得できる
	old, err := svc.GetKeyByIdentifier(ctx, first.KeyIdentifier)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(old.Key) != string(first.Key) {
		t.Error("want same key material for rotated key")
	}
}

func TestKeyService_GetKeyByIdentifier_NotFound(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, nil)

	_, err := svc.GetKeyByIdentifier(context.Background(), "missing")
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
	// 取得失敗時に鍵を生成しない
	if len(repo.keys) != 0 {
		t.Errorf("want no key generated, got %d", len(repo.keys))
	}
}

func TestKeyService_GetKeyByIdentifier_UnwrapError(t *testing.T) {
	repo := newMockKeyRepository()
	wrapper := &mockKeyWrapper{}
	svc := NewKeyService(repo, wrapper, 0, nil)
	ctx := context.Background()

	key, err := svc.GetActiveKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wrapper.decryptErr = domain.ErrDecryptionFailed
	_, err = svc.GetKeyByIdentifier(ctx, key.KeyIdentifier)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("want ErrDecryptionFailed, got %v", err)
	}
}

func TestKeyService_RotateActiveKey(t *testing.T) {
	repo := newMockKeyRepository()
	metrics := &recordingMetrics{}
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, metrics)
	ctx := context.Background()

	first, err := svc.GetActiveKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rotated, err := svc.RotateActiveKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rotated.KeyIdentifier == first.KeyIdentifier {
		t.Error("want new key identifier after rotation")
	}
	if !rotated.IsActive {
		t.Error("want rotated key to be active")
	}
	if n := repo.activeCount(); n != 1 {
		t.Errorf("want exactly 1 active key, got %d", n)
	}

	active, err := svc.GetActiveKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.KeyIdentifier != rotated.KeyIdentifier {
		t.Errorf("want active %s, got %s", rotated.KeyIdentifier, active.KeyIdentifier)
	}
	if got := metrics.keyEvents[len(metrics.keyEvents)-1]; got != "rotated" {
		t.Errorf("want rotated event, got %s", got)
	}
}

func TestKeyService_RotateActiveKey_WrapError(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{encryptErr: errors.New("kms unavailable")}, 0, nil)

	if _, err := svc.RotateActiveKey(context.Background()); err == nil {
		t.Fatal("want error, got nil")
	}
	if len(repo.keys) != 0 {
		t.Errorf("want no stored key, got %d", len(repo.keys))
	}
}

func TestKeyService_ActiveKeyStatus(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{}, 24*time.Hour, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	ctx := context.Background()

	// 有効鍵がなくても生成しない
	if _, _, err := svc.ActiveKeyStatus(ctx); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}
	if len(repo.keys) != 0 {
		t.Fatalf("status check must not create keys, got %d", len(repo.keys))
	}

	if _, err := svc.GetActiveKey(ctx); err != nil {
		t.Fatalf("GetActiveKey failed: %v", err)
	}

	metadata, due, err := svc.ActiveKeyStatus(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if due {
		t.Error("want rotation not yet due")
	}

	svc.now = func() time.Time { return base.Add(25 * time.Hour) }
	again, due, err := svc.ActiveKeyStatus(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Error("want rotation due after period")
	}
	// 期限超過でも自動ローテーションしない
	if again.KeyIdentifier != metadata.KeyIdentifier {
		t.Error("want same key after rotation date")
	}
	if len(repo.keys) != 1 {
		t.Errorf("want exactly 1 key, got %d", len(repo.keys))
	}
}

func TestKeyService_ListKeys(t *testing.T) {
	repo := newMockKeyRepository()
	svc := NewKeyService(repo, &mockKeyWrapper{}, 0, nil)
	ctx := context.Background()

	if _, err := svc.GetActiveKey(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RotateActiveKey(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys, err := svc.ListKeys(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("want 2 keys, got %d", len(keys))
	}
	if keys[0].IsActive || !keys[1].IsActive {
		t.Errorf("want only latest key active, got %v %v", keys[0].IsActive, keys[1].IsActive)
	}
}
