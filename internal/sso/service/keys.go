package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/sso/internal/sso/domain"
	"github.com/aussiebroadwan/sso/pkg/cryptox"
	"github.com/aussiebroadwan/sso/pkg/idx"
)

// newKey generates the value and sealed secret of a new key. Service and
// user are nil for root keys, user is nil for service keys.
func newKey(service *domain.Service, user *domain.User, t domain.KeyType, name string, now time.Time) (domain.KeyWithValue, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.KeyWithValue{}, err
	}

	var secret, totpURL string
	if t == domain.KeyTypeTotp {
		secret, totpURL, err = generateTotp(*service, *user)
	} else {
		secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
	}
	if err != nil {
		return domain.KeyWithValue{}, err
	}
	sealed, err := cryptox.EncryptSecret([]byte(secret))
	if err != nil {
		return domain.KeyWithValue{}, fmt.Errorf("seal key secret: %w", err)
	}

	k := domain.Key{
		ID:              idx.NewAt(now).String(),
		Name:            name,
		Type:            t,
		Enabled:         true,
		ValueHash:       cryptox.FingerprintToken(value),
		SecretEncrypted: sealed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if service != nil {
		k.ServiceID = service.ID
	}
	if user != nil {
		k.UserID = user.ID
	}
	return domain.KeyWithValue{Key: k, Value: value, TotpURL: totpURL}, nil
}

type KeyCreateRequest struct {
	Name      string
	Type      domain.KeyType
	ServiceID string // ignored for service callers
	UserID    string
}

// resolveKeyOwner decides which service and user a new key belongs to.
// Service callers may only create keys for their own users; root may create
// root, service and user keys.
func (s *AdminService) resolveKeyOwner(
	ctx context.Context,
	e *AuditEntry,
	c Caller,
	req KeyCreateRequest,
) (*domain.Service, *domain.User, error) {
	serviceID := req.ServiceID
	if c.Service != nil {
		if req.UserID == "" {
			return nil, nil, forbidden("service keys cannot create service keys")
		}
		serviceID = c.Service.ID
	}
	if serviceID == "" {
		if req.UserID != "" {
			return nil, nil, badRequest("user keys need a service")
		}
		return nil, nil, nil
	}

	service, err := s.Store.Services().GetServiceByID(ctx, serviceID)
	if err != nil {
		return nil, nil, asBadRequest(storeErr(err, "service not found"))
	}
	if req.UserID == "" {
		return &service, nil, nil
	}
	user, err := s.readUser(ctx, e, service, req.UserID, false)
	if err != nil {
		return nil, nil, err
	}
	return &service, &user, nil
}

// KeyCreate returns the new key with its value. The value is not stored and
// cannot be read again.
func (s *AdminService) KeyCreate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	req KeyCreateRequest,
) (out domain.KeyWithValue, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyCreate)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return out, badRequest("name required")
	}
	service, user, err := s.resolveKeyOwner(ctx, e, c, req)
	if err != nil {
		return out, err
	}
	switch req.Type {
	case domain.KeyTypeKey:
	case domain.KeyTypeToken, domain.KeyTypeTotp:
		if user == nil {
			return out, badRequest(req.Type.String() + " keys belong to a user")
		}
	default:
		return out, badRequest("key type invalid")
	}

	out, err = newKey(service, user, req.Type, req.Name, s.now())
	if err != nil {
		return domain.KeyWithValue{}, err
	}
	if err := s.Store.Keys().CreateKey(ctx, out.Key); err != nil {
		return domain.KeyWithValue{}, storeErr(err, "key exists")
	}
	e.Subject = out.ID
	e.SetUserKey(out.Key)

	stored, err := s.Store.Keys().GetKeyByID(ctx, out.ID)
	if err != nil {
		return domain.KeyWithValue{}, storeErr(err, "key not found")
	}
	out.Key = stored
	return out, nil
}

// readKey loads a key the caller may manage. Keys outside a service
// caller's service do not exist for it.
func (s *AdminService) readKey(ctx context.Context, c Caller, id string) (domain.Key, error) {
	k, err := s.Store.Keys().GetKeyByID(ctx, id)
	if err != nil {
		return domain.Key{}, storeErr(err, "key not found")
	}
	if mask := c.ServiceMask(); mask != "" && k.ServiceID != mask {
		return domain.Key{}, fmt.Errorf("%w: key not found", ErrNotFound)
	}
	return k, nil
}

func (s *AdminService) KeyList(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue string,
	f domain.KeyFilter,
) (out []domain.Key, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyList)
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return nil, err
	}
	if mask := c.ServiceMask(); mask != "" {
		f.ServiceID = mask
	}
	f.Limit = clampLimit(f.Limit)
	return s.Store.Keys().ListKeys(ctx, f)
}

func (s *AdminService) KeyRead(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (out domain.Key, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyRead)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	return s.readKey(ctx, c, id)
}

// KeyUpdate changes a key's name and enabled flag, or revokes it. A revoked
// key stays revoked.
func (s *AdminService) KeyUpdate(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
	u domain.KeyUpdate,
) (out domain.Key, err error) {
	e := NewAuditEntry(meta, domain.AuditKeyUpdate)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return out, err
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return out, badRequest("name required")
	}
	prev, err := s.readKey(ctx, c, id)
	if err != nil {
		return out, err
	}
	next := u.Apply(prev)
	next.UpdatedAt = s.now()
	if err := s.Store.Keys().UpdateKey(ctx, next); err != nil {
		return out, storeErr(err, "key not found")
	}
	e.Data = keyDiff(prev, next)
	return s.readKey(ctx, c, id)
}

func (s *AdminService) KeyDelete(
	ctx context.Context,
	meta domain.AuditMeta,
	keyValue, id string,
) (err error) {
	e := NewAuditEntry(meta, domain.AuditKeyDelete)
	e.Subject = id
	defer func() { err = s.Audit.Outcome(ctx, e, err) }()

	c, err := s.authServiceOrRoot(ctx, e, keyValue)
	if err != nil {
		return err
	}
	if _, err := s.readKey(ctx, c, id); err != nil {
		return err
	}
	return storeErr(s.Store.Keys().DeleteKey(ctx, id), "key not found")
}

// CreateRootKey creates a root key outside of any request. It is used at
// start-up and by the create-root-key command.
func (s *AdminService) CreateRootKey(ctx context.Context, name string) (domain.KeyWithValue, error) {
	k, err := newKey(nil, nil, domain.KeyTypeKey, name, s.now())
	if err != nil {
		return domain.KeyWithValue{}, err
	}
	if err := s.Store.Keys().CreateKey(ctx, k.Key); err != nil {
		return domain.KeyWithValue{}, storeErr(err, "key exists")
	}
	return k, nil
}
