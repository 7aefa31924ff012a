// Package seed loads demonstration data through the service layer so every
// row passes the same validation and auditing as API traffic.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"propie/api/internal/app"
	"propie/api/internal/store"
)

//go:embed fixture.yaml
var fixtureYAML []byte

type Fixture struct {
	Users         []User         `yaml:"users"`
	Developments  []Development  `yaml:"developments"`
	Professionals []Professional `yaml:"professionals"`
}

type User struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

type Development struct {
	Name             string     `yaml:"name"`
	Owner            string     `yaml:"owner"`
	Status           string     `yaml:"status"`
	Published        bool       `yaml:"published"`
	TotalUnits       int        `yaml:"totalUnits"`
	ShortDescription string     `yaml:"shortDescription"`
	Description      string     `yaml:"description"`
	MainImage        string     `yaml:"mainImage"`
	Address          string     `yaml:"address"`
	City             string     `yaml:"city"`
	County           string     `yaml:"county"`
	Eircode          string     `yaml:"eircode"`
	Latitude         *float64   `yaml:"latitude"`
	Longitude        *float64   `yaml:"longitude"`
	Features         []string   `yaml:"features"`
	Units            []UnitType `yaml:"units"`
}

// UnitType expands into Count units numbered <Prefix>-01.. The first Sold are
// SOLD, the next Reserved are RESERVED and the rest AVAILABLE.
type UnitType struct {
	Prefix    string  `yaml:"prefix"`
	Name      string  `yaml:"name"`
	Type      string  `yaml:"type"`
	Bedrooms  int     `yaml:"bedrooms"`
	Bathrooms int     `yaml:"bathrooms"`
	SizeSqm   float64 `yaml:"sizeSqm"`
	Price     string  `yaml:"price"`
	Count     int     `yaml:"count"`
	Sold      int     `yaml:"sold"`
	Reserved  int     `yaml:"reserved"`
}

type Professional struct {
	Name               string        `yaml:"name"`
	Email              string        `yaml:"email"`
	Phone              string        `yaml:"phone"`
	Profession         string        `yaml:"profession"`
	Organisation       string        `yaml:"organisation"`
	RegistrationNumber string        `yaml:"registrationNumber"`
	AppointTo          []Appointment `yaml:"appointTo"`
}

type Appointment struct {
	Development string `yaml:"development"`
	Role        string `yaml:"role"`
}

// Load parses the embedded fixture.
func Load() (Fixture, error) {
	return Parse(fixtureYAML)
}

func Parse(raw []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse seed fixture: %w", err)
	}
	return f, nil
}

type Result struct {
	Skipped       bool
	Users         int
	Developments  int
	Units         int
	Professionals int
	Appointments  int
}

// Run applies f. It does nothing when any development already exists, so it
// is safe to call on every deploy. Every seeded account gets password.
func Run(ctx context.Context, svc *app.Service, f Fixture, password string, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var result Result

	system := app.Session{Role: "admin", UserName: "seed"}
	_, total, err := svc.ListDevelopments(ctx, system, store.DevelopmentFilter{Limit: 1})
	if err != nil {
		return result, fmt.Errorf("check existing developments: %w", err)
	}
	if total > 0 {
		logger.Info("seed skipped, developments already present", zap.Int("developments", total))
		result.Skipped = true
		return result, nil
	}

	users := map[string]store.User{}
	var admin app.Session
	for _, fu := range f.Users {
		u, created, err := ensureUser(ctx, svc, fu, password)
		if err != nil {
			return result, err
		}
		if created {
			result.Users++
		}
		users[u.Email] = u
		if u.Role == "admin" && admin.UserID == "" {
			admin = app.SessionFor(u)
		}
	}

	developments := map[string]store.Development{}
	for _, fd := range f.Developments {
		owner, ok := users[fd.Owner]
		if !ok {
			return result, fmt.Errorf("development %q: unknown owner %q", fd.Name, fd.Owner)
		}
		actor := app.SessionFor(owner)
		d, err := svc.CreateDevelopment(ctx, actor, app.DevelopmentInput{
			Name:             fd.Name,
			Status:           fd.Status,
			Description:      fd.Description,
			ShortDescription: fd.ShortDescription,
			MainImage:        fd.MainImage,
			Address:          fd.Address,
			City:             fd.City,
			County:           fd.County,
			Eircode:          fd.Eircode,
			Latitude:         fd.Latitude,
			Longitude:        fd.Longitude,
			TotalUnits:       fd.TotalUnits,
			Features:         fd.Features,
			Published:        fd.Published,
		})
		if err != nil {
			return result, fmt.Errorf("development %q: %w", fd.Name, err)
		}
		result.Developments++
		developments[d.Name] = d

		for _, ut := range fd.Units {
			n, err := createUnits(ctx, svc, actor, d.ID, ut)
			result.Units += n
			if err != nil {
				return result, fmt.Errorf("development %q units %s: %w", fd.Name, ut.Prefix, err)
			}
		}
	}

	for _, fp := range f.Professionals {
		p, err := svc.RegisterProfessional(ctx, app.ProfessionalInput{
			Name:               fp.Name,
			Email:              fp.Email,
			Phone:              fp.Phone,
			Profession:         fp.Profession,
			Organisation:       fp.Organisation,
			RegistrationNumber: fp.RegistrationNumber,
		})
		if err != nil {
			return result, fmt.Errorf("professional %q: %w", fp.Email, err)
		}
		result.Professionals++
		if admin.UserID == "" {
			continue
		}
		if _, err := svc.VerifyProfessional(ctx, admin, p.ID); err != nil {
			return result, fmt.Errorf("verify professional %q: %w", fp.Email, err)
		}
		for _, a := range fp.AppointTo {
			d, ok := developments[a.Development]
			if !ok {
				return result, fmt.Errorf("professional %q: unknown development %q", fp.Email, a.Development)
			}
			if _, err := svc.AppointToDevelopment(ctx, admin, d.ID, p.ID, a.Role); err != nil {
				return result, fmt.Errorf("appoint %q to %q: %w", fp.Email, a.Development, err)
			}
			result.Appointments++
		}
	}

	logger.Info("seed complete",
		zap.Int("users", result.Users),
		zap.Int("developments", result.Developments),
		zap.Int("units", result.Units),
		zap.Int("professionals", result.Professionals),
		zap.Int("appointments", result.Appointments),
	)
	return result, nil
}

// ensureUser provisions fu, reusing an existing account with the same email.
func ensureUser(ctx context.Context, svc *app.Service, fu User, password string) (store.User, bool, error) {
	u, err := svc.ProvisionUser(ctx, fu.Email, password, fu.Name, fu.Role)
	if err == nil {
		return u, true, nil
	}
	var domainErr *app.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "EMAIL_EXISTS" {
		return store.User{}, false, fmt.Errorf("user %q: %w", fu.Email, err)
	}
	u, err = svc.UserByEmail(ctx, fu.Email)
	if err != nil {
		return store.User{}, false, fmt.Errorf("user %q: %w", fu.Email, err)
	}
	return u, false, nil
}

func createUnits(ctx context.Context, svc *app.Service, actor app.Session, developmentID string, ut UnitType) (int, error) {
	price, err := decimal.NewFromString(ut.Price)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", ut.Price, err)
	}
	for i := 0; i < ut.Count; i++ {
		status := "AVAILABLE"
		switch {
		case i < ut.Sold:
			status = "SOLD"
		case i < ut.Sold+ut.Reserved:
			status = "RESERVED"
		}
		if _, err := svc.CreateUnit(ctx, actor, developmentID, app.UnitInput{
			UnitNumber: fmt.Sprintf("%s-%02d", ut.Prefix, i+1),
			Name:       ut.Name,
			Type:       ut.Type,
			Bedrooms:   ut.Bedrooms,
			Bathrooms:  ut.Bathrooms,
			SizeSqm:    ut.SizeSqm,
			BasePrice:  price,
			Status:     status,
		}); err != nil {
			return i, err
		}
	}
	return ut.Count, nil
}
