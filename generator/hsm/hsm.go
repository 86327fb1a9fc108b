// Package hsm generates secp256k1 key pairs inside a PKCS#11 token. Private
// keys never leave the token; accounts carry a PKCS#11 object reference.
package hsm

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/miekg/pkcs11"
	"github.com/ruteri/account-generator/interfaces"
)

const BackendName = "hsm-based"

const keyIDLength = 16

// DER encoding of the secp256k1 curve OID 1.3.132.0.10.
var secp256k1Params = []byte{0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a}

var (
	ErrLibraryNotFound = errors.New("pkcs11: library could not be loaded")
	ErrTokenNotFound   = errors.New("pkcs11: token not found")
	ErrInvalidECPoint  = errors.New("pkcs11: invalid EC point")
)

// Module is the subset of *pkcs11.Ctx used by the backend.
type Module interface {
	Initialize() error
	Finalize() error
	Destroy()
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	Logout(sh pkcs11.SessionHandle) error
	GenerateKeyPair(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, public, private []*pkcs11.Attribute) (pkcs11.ObjectHandle, pkcs11.ObjectHandle, error)
	GetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error)
	SetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) error
	DestroyObject(sh pkcs11.SessionHandle, oh pkcs11.ObjectHandle) error
	GenerateRandom(sh pkcs11.SessionHandle, length int) ([]byte, error)
}

// ModuleLoader loads the PKCS#11 library at path.
type ModuleLoader func(path string) (Module, error)

func LoadModule(path string) (Module, error) {
	p := pkcs11.New(path)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, path)
	}
	return p, nil
}

type Backend struct {
	cfg  Config
	slot slotSelector
	load ModuleLoader

	module   Module
	session  pkcs11.SessionHandle
	slotID   uint
	loggedIn bool
}

// New validates cfg. The library is not loaded until Open.
func New(cfg Config, load ModuleLoader) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slot, _ := parseSlot(cfg.Slot)

	if load == nil {
		load = LoadModule
	}
	return &Backend{cfg: cfg, slot: slot, load: load}, nil
}

func (b *Backend) Name() string {
	return BackendName
}

// Open loads the module, finds the slot and logs a read-write session in.
// On failure everything acquired so far is released.
func (b *Backend) Open() (err error) {
	module, err := b.load(b.cfg.Library)
	if err != nil {
		return err
	}

	if err := module.Initialize(); err != nil && !errors.Is(err, pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED)) {
		module.Destroy()
		return fmt.Errorf("failed to initialize PKCS#11 library: %w", err)
	}
	b.module = module
	defer func() {
		if err != nil {
			b.release()
		}
	}()

	b.slotID, err = b.findSlot()
	if err != nil {
		return err
	}

	b.session, err = module.OpenSession(b.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("failed to open session on slot %d: %w", b.slotID, err)
	}

	if err := module.Login(b.session, pkcs11.CKU_USER, b.cfg.PIN); err != nil {
		if !errors.Is(err, pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN)) {
			module.CloseSession(b.session)
			return fmt.Errorf("failed to login to slot %d: %w", b.slotID, err)
		}
	}
	b.loggedIn = true
	return nil
}

func (b *Backend) findSlot() (uint, error) {
	slots, err := b.module.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot list: %w", err)
	}

	if b.slot.label == "" {
		if !slices.Contains(slots, b.slot.id) {
			return 0, fmt.Errorf("%w: no token present in slot %d", ErrTokenNotFound, b.slot.id)
		}
		return b.slot.id, nil
	}

	for _, slot := range slots {
		info, err := b.module.GetTokenInfo(slot)
		if err != nil {
			return 0, fmt.Errorf("failed to read token info for slot %d: %w", slot, err)
		}
		if strings.TrimSpace(info.Label) == b.slot.label {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: no token labelled %q", ErrTokenNotFound, b.slot.label)
}

func (b *Backend) Generate() (*interfaces.Account, error) {
	if !b.loggedIn {
		return nil, errors.New("backend is not open")
	}

	id, err := b.module.GenerateRandom(b.session, keyIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key id: %w", err)
	}

	publicTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, secp256k1Params),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	privateTemplate := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}

	pub, priv, err := b.module.GenerateKeyPair(
		b.session,
		[]*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)},
		publicTemplate,
		privateTemplate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key pair: %w", err)
	}

	address, err := b.labelKeyPair(pub, priv)
	if err != nil {
		// Nothing refers to an unlabelled pair, so it must not stay on the token.
		if destroyErr := b.destroyKeyPair(pub, priv); destroyErr != nil {
			return nil, errors.Join(err, destroyErr)
		}
		return nil, err
	}

	return &interfaces.Account{
		Address:      address,
		KeyReference: keyReference(b.slotID, id, address.Hex()),
		Backend:      BackendName,
		CreatedAt:    time.Now().UTC(),
		Metadata: map[string]string{
			"slot":  b.slot.String(),
			"label": address.Hex(),
		},
	}, nil
}

// labelKeyPair derives the address of a fresh key pair and writes it to
// CKA_LABEL on both objects.
func (b *Backend) labelKeyPair(pub, priv pkcs11.ObjectHandle) (common.Address, error) {
	attrs, err := b.module.GetAttributeValue(b.session, pub, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read public key: %w", err)
	}
	if len(attrs) != 1 {
		return common.Address{}, fmt.Errorf("%w: token returned %d attributes", ErrInvalidECPoint, len(attrs))
	}

	point, err := unwrapECPoint(attrs[0].Value)
	if err != nil {
		return common.Address{}, err
	}
	pubKey, err := crypto.UnmarshalPubkey(point)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidECPoint, err)
	}
	address := crypto.PubkeyToAddress(*pubKey)

	label := []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_LABEL, address.Hex())}
	for _, obj := range []pkcs11.ObjectHandle{pub, priv} {
		if err := b.module.SetAttributeValue(b.session, obj, label); err != nil {
			return common.Address{}, fmt.Errorf("failed to label key %s: %w", address.Hex(), err)
		}
	}
	return address, nil
}

func (b *Backend) destroyKeyPair(pub, priv pkcs11.ObjectHandle) error {
	var errs []error
	for _, obj := range []pkcs11.ObjectHandle{priv, pub} {
		if err := b.module.DestroyObject(b.session, obj); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy key object %d: %w", obj, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) Close() error {
	if b.module == nil {
		return nil
	}
	return b.release()
}

func (b *Backend) release() error {
	var errs []error
	if b.loggedIn {
		if err := b.module.Logout(b.session); err != nil && !errors.Is(err, pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN)) {
			errs = append(errs, fmt.Errorf("logout: %w", err))
		}
		if err := b.module.CloseSession(b.session); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		b.loggedIn = false
	}
	if err := b.module.Finalize(); err != nil {
		errs = append(errs, fmt.Errorf("finalize: %w", err))
	}
	b.module.Destroy()
	b.module = nil
	return errors.Join(errs...)
}

// unwrapECPoint accepts CKA_EC_POINT either DER wrapped in an OCTET STRING
// (as the standard requires) or as the raw uncompressed point some tokens
// return.
func unwrapECPoint(value []byte) ([]byte, error) {
	if len(value) == 65 && value[0] == 0x04 {
		return value, nil
	}

	var point []byte
	rest, err := asn1.Unmarshal(value, &point)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidECPoint, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidECPoint)
	}
	return point, nil
}

// keyReference renders a PKCS#11 URI (RFC 7512) locating the key pair.
func keyReference(slot uint, id []byte, label string) string {
	var sb strings.Builder
	for _, c := range id {
		fmt.Fprintf(&sb, "%%%02x", c)
	}
	return fmt.Sprintf("pkcs11:slot-id=%d;id=%s;object=%s", slot, sb.String(), label)
}
