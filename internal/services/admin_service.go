package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/seagull-retail/api/internal/domain"
	"github.com/seagull-retail/api/internal/repositories"
)

const (
	credentialDigestLength = sha256.Size * 2
	maxAdminUsernameLength = 64
	// CombinedCredentialDelimiter separates the requester and new credential in the legacy form.
	CombinedCredentialDelimiter = ";"
)

var errAdminNotAdded = fmt.Errorf("%w: no admin was added", ErrAdminUnauthorized)

// AdminServiceDeps wires the admin repository and clock.
type AdminServiceDeps struct {
	Repository repositories.AdminRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type adminService struct {
	repo   repositories.AdminRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

var _ AdminService = (*adminService)(nil)

// NewAdminService constructs the two-tier administrator authority.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Repository == nil {
		return nil, errors.New("admin service: repository is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("admin service: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &adminService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// Authenticate compares the supplied digest with the stored one byte for byte in constant time.
func (s *adminService) Authenticate(ctx context.Context, username, credential string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return fmt.Errorf("%w: username is required", ErrAdminInvalidInput)
	}
	admin, err := s.repo.FindAdmin(ctx, name)
	if err != nil {
		return s.translateRepoError(err)
	}
	if subtle.ConstantTimeCompare([]byte(admin.PasswordHash), []byte(credential)) != 1 {
		return ErrAdminUnauthorized
	}
	return nil
}

// AddAdmin provisions a new administrator after authenticating the requester. Requester
// failures collapse into one Unauthorized error so callers cannot tell which check failed.
func (s *adminService) AddAdmin(ctx context.Context, cmd AddAdminCommand) (string, error) {
	requester := strings.TrimSpace(cmd.RequesterUsername)
	newName := strings.TrimSpace(cmd.NewUsername)
	newCredential := strings.TrimSpace(cmd.NewCredential)

	if requester == "" || strings.TrimSpace(cmd.RequesterCredential) == "" {
		return "", fmt.Errorf("%w: requester username and credential are required", ErrAdminInvalidInput)
	}
	if err := validateAdminUsername(newName); err != nil {
		return "", err
	}
	if !IsCredentialDigest(newCredential) {
		return "", fmt.Errorf("%w: new credential must be a %d character hex digest", ErrAdminInvalidInput, credentialDigestLength)
	}

	if err := s.Authenticate(ctx, requester, cmd.RequesterCredential); err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		s.logger(ctx, "admin.add_rejected", map[string]any{"requester": requester})
		return "", errAdminNotAdded
	}

	if _, err := s.repo.FindAdmin(ctx, newName); err == nil {
		return "", fmt.Errorf("%w: %s already exists", ErrAdminAlreadyExists, newName)
	} else if !isRepoNotFound(err) {
		return "", s.translateRepoError(err)
	}

	admin := domain.Admin{Username: newName, PasswordHash: newCredential, CreatedAt: s.now()}
	if err := s.repo.InsertAdmin(ctx, admin); err != nil {
		if repositories.InventoryErrorCodeOf(err) == repositories.InventoryErrorAlreadyExists {
			return "", fmt.Errorf("%w: %s already exists", ErrAdminAlreadyExists, newName)
		}
		return "", s.translateRepoError(err)
	}

	s.logger(ctx, "admin.added", map[string]any{"requester": requester, "username": newName})
	return fmt.Sprintf("admin %s added", newName), nil
}

// EnsureBootstrapAdmin inserts the seed administrator unless the username already exists.
// The plaintext password is hashed before storage.
func (s *adminService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	name := strings.TrimSpace(username)
	if err := validateAdminUsername(name); err != nil {
		return false, err
	}
	if password == "" {
		return false, fmt.Errorf("%w: bootstrap password is required", ErrAdminInvalidInput)
	}

	admin := domain.Admin{Username: name, PasswordHash: HashCredential(password), CreatedAt: s.now()}
	if err := s.repo.InsertAdmin(ctx, admin); err != nil {
		if repositories.InventoryErrorCodeOf(err) == repositories.InventoryErrorAlreadyExists {
			return false, nil
		}
		return false, s.translateRepoError(err)
	}
	s.logger(ctx, "admin.bootstrapped", map[string]any{"username": name})
	return true, nil
}

func (s *adminService) ListAdmins(ctx context.Context) ([]AdminSummary, error) {
	admins, err := s.repo.ListAdmins(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	out := make([]AdminSummary, 0, len(admins))
	for _, admin := range admins {
		out = append(out, AdminSummary{Username: admin.Username, CreatedAt: admin.CreatedAt})
	}
	return out, nil
}

// ParseCombinedCredential splits the legacy "requesterDigest;newDigest" form.
func ParseCombinedCredential(compound string) (requester string, newCredential string, err error) {
	parts := strings.Split(compound, CombinedCredentialDelimiter)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: combined credential must contain exactly one %q", ErrAdminInvalidInput, CombinedCredentialDelimiter)
	}
	requester = strings.TrimSpace(parts[0])
	newCredential = strings.TrimSpace(parts[1])
	if requester == "" || newCredential == "" {
		return "", "", fmt.Errorf("%w: combined credential parts must be non-empty", ErrAdminInvalidInput)
	}
	return requester, newCredential, nil
}

// HashCredential returns the lowercase hex SHA-256 digest of a plaintext password.
func HashCredential(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// IsCredentialDigest reports whether value looks like a hex SHA-256 digest.
func IsCredentialDigest(value string) bool {
	if len(value) != credentialDigestLength {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}

func validateAdminUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: username is required", ErrAdminInvalidInput)
	}
	if len(name) > maxAdminUsernameLength || strings.ContainsAny(name, " \t\r\n;") {
		return fmt.Errorf("%w: username %q is not allowed", ErrAdminInvalidInput, name)
	}
	return nil
}

func (s *adminService) translateRepoError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isRepoNotFound(err) {
		return detail(ErrAdminNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrAdminUnavailable, err)
}
