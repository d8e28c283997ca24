package accounting

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/estatebook/estatebook/internal/shared"
)

// AccountInput carries a manual chart change.
type AccountInput struct {
	Code     string `validate:"required,numeric,min=1,max=12"`
	Name     string `validate:"required,max=200"`
	IsActive bool
}

var validate = validator.New()

// ListAccounts retrieves all chart of accounts entries.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// PostableAccounts lists active detail accounts for journal forms.
func (s *Service) PostableAccounts(ctx context.Context) ([]Account, error) {
	all, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(all))
	for _, a := range all {
		if a.Postable() {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateAccount adds an account below the closest existing ancestor code,
// inheriting its type and nature.
func (s *Service) CreateAccount(ctx context.Context, actorID int64, in AccountInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return Account{}, err
	}
	code, name := in.Code, in.Name
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.AccountsByCodes(ctx, []string{code})
		if err != nil {
			return err
		}
		if _, ok := existing[code]; ok {
			return ErrDuplicateCode
		}
		parent, err := closestParent(ctx, tx, code)
		if err != nil {
			return err
		}
		acc, _, err := tx.UpsertAccount(ctx, Account{
			Code:     code,
			Name:     name,
			Level:    LevelForCode(code),
			ParentID: &parent.ID,
			Type:     parent.Type,
			Nature:   parent.Nature,
			IsActive: true,
		})
		if err != nil {
			return err
		}
		created = acc
		return s.recordAccount(ctx, actorID, "account.create", acc)
	})
	return created, err
}

// closestParent finds the longest existing strict prefix of code.
func closestParent(ctx context.Context, tx TxRepository, code string) (Account, error) {
	prefixes := make([]string, 0, len(code))
	for i := len(code) - 1; i >= 1; i-- {
		prefixes = append(prefixes, code[:i])
	}
	if len(prefixes) == 0 {
		return Account{}, ErrParentNotFound
	}
	found, err := tx.AccountsByCodes(ctx, prefixes)
	if err != nil {
		return Account{}, err
	}
	for _, p := range prefixes {
		if acc, ok := found[p]; ok {
			if LevelForCode(code) <= acc.Level {
				return Account{}, ErrParentNotFound
			}
			return acc, nil
		}
	}
	return Account{}, ErrParentNotFound
}

// UpdateAccount renames an account or toggles whether it accepts postings.
func (s *Service) UpdateAccount(ctx context.Context, actorID, id int64, in AccountInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("accounting: name required")
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateAccount(ctx, id, name, in.IsActive); err != nil {
			return err
		}
		return s.recordAccount(ctx, actorID, "account.update", Account{ID: id, Name: name, IsActive: in.IsActive})
	})
}

// EnsureMemberAccount opens (or renames) the detail receivable account of
// a user under the buyers' receivables account.
func (s *Service) EnsureMemberAccount(ctx context.Context, userID int64, name string) error {
	if userID <= 0 {
		return fmt.Errorf("accounting: user id required")
	}
	code := MemberAccountCode(userID)
	label := "Receivable - " + strings.TrimSpace(name)
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.AccountsByCodes(ctx, []string{MemberReceivableParent, code})
		if err != nil {
			return err
		}
		if acc, ok := found[code]; ok {
			if acc.Name == label {
				return nil
			}
			return tx.UpdateAccount(ctx, acc.ID, label, acc.IsActive)
		}
		parent, ok := found[MemberReceivableParent]
		if !ok {
			return fmt.Errorf("accounting: receivables account %s missing, seed the chart first: %w", MemberReceivableParent, ErrAccountNotFound)
		}
		_, _, err = tx.UpsertAccount(ctx, Account{
			Code:     code,
			Name:     label,
			Level:    LevelForCode(code),
			ParentID: &parent.ID,
			Type:     parent.Type,
			Nature:   parent.Nature,
			IsActive: true,
		})
		return err
	})
}

// SeedResult reports what SeedChart changed.
type SeedResult struct {
	Created  int
	Existing int
	Mappings int
}

// SeedChart creates every account of the nested chart that does not exist
// yet and installs the default account mappings. Running it twice is a
// no-op.
func (s *Service) SeedChart(ctx context.Context, data []byte) (SeedResult, error) {
	nodes, err := ParseChart(data)
	if err != nil {
		return SeedResult{}, err
	}
	var res SeedResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids := make(map[string]int64, len(nodes))
		for _, n := range nodes {
			acc := Account{Code: n.Code, Name: n.Name, Level: n.Level, Type: n.Type, Nature: n.Nature, IsActive: true}
			if n.ParentCode != "" {
				pid, ok := ids[n.ParentCode]
				if !ok {
					return fmt.Errorf("accounting: parent %s of %s not seeded", n.ParentCode, n.Code)
				}
				acc.ParentID = &pid
			}
			stored, inserted, err := tx.UpsertAccount(ctx, acc)
			if err != nil {
				return fmt.Errorf("accounting: seed %s: %w", n.Code, err)
			}
			ids[n.Code] = stored.ID
			if inserted {
				res.Created++
			} else {
				res.Existing++
			}
		}
		for _, m := range DefaultMappings {
			id, ok := ids[m.Code]
			if !ok {
				continue
			}
			if _, err := tx.GetMapping(ctx, m.Module, m.Key); err == nil {
				continue
			}
			if err := tx.UpsertMapping(ctx, m.Module, m.Key, id); err != nil {
				return err
			}
			res.Mappings++
		}
		return nil
	})
	return res, err
}

// ListMappings returns every configured account mapping.
func (s *Service) ListMappings(ctx context.Context) ([]AccountMapping, error) {
	var out []AccountMapping
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListMappings(ctx)
		return err
	})
	return out, err
}

// SetMapping points a mapping key at a postable account.
func (s *Service) SetMapping(ctx context.Context, actorID int64, module, key, code string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.AccountsByCodes(ctx, []string{strings.TrimSpace(code)})
		if err != nil {
			return err
		}
		acc, ok := found[strings.TrimSpace(code)]
		if !ok {
			return ErrAccountNotFound
		}
		if !acc.Postable() {
			return ErrAccountNotPostable
		}
		if err := tx.UpsertMapping(ctx, module, key, acc.ID); err != nil {
			return err
		}
		return s.recordAccount(ctx, actorID, "mapping.set", acc)
	})
}

// ResolveMapping returns the account a mapping key points at.
func (s *Service) ResolveMapping(ctx context.Context, module, key string) (AccountMapping, error) {
	var m AccountMapping
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		m, err = tx.GetMapping(ctx, module, key)
		return err
	})
	return m, err
}

func (s *Service) recordAccount(ctx context.Context, actorID int64, action string, acc Account) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", acc.ID),
		Meta:     map[string]any{"code": acc.Code, "name": acc.Name, "active": acc.IsActive},
		At:       s.now(),
	})
}

// GetAccount loads one account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	var acc Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		found, err := tx.AccountsByIDs(ctx, []int64{id})
		if err != nil {
			return err
		}
		var ok bool
		if acc, ok = found[id]; !ok {
			return ErrAccountNotFound
		}
		return nil
	})
	return acc, err
}
