package app

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"propie/api/internal/audit"
	"propie/api/internal/rbac"
	"propie/api/internal/store"
	"propie/api/internal/util"
)

var professions = map[string]bool{
	"SOLICITOR":         true,
	"ARCHITECT":         true,
	"ENGINEER":          true,
	"QUANTITY_SURVEYOR": true,
	"ESTATE_AGENT":      true,
	"MORTGAGE_BROKER":   true,
	"CONTRACTOR":        true,
}

var professionalStatuses = map[string]bool{
	"PENDING":   true,
	"VERIFIED":  true,
	"REJECTED":  true,
	"SUSPENDED": true,
}

var teamStatuses = map[string]bool{
	"APPOINTED": true,
	"ACTIVE":    true,
	"COMPLETED": true,
	"REMOVED":   true,
}

type ProfessionalInput struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Profession         string `json:"profession"`
	Organisation       string `json:"organisation"`
	RegistrationNumber string `json:"registrationNumber"`
}

// RegisterProfessional is public; new registrations wait in PENDING.
func (s *Service) RegisterProfessional(ctx context.Context, in ProfessionalInput) (store.Professional, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Profession = strings.ToUpper(strings.TrimSpace(in.Profession))

	errs := fieldErrors{}
	if strings.TrimSpace(in.Name) == "" {
		errs.add("name", "is required")
	}
	if in.Email == "" {
		errs.add("email", "is required")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		errs.add("email", "is not a valid email address")
	}
	if !professions[in.Profession] {
		errs.add("profession", "is not a recognised profession")
	}
	if strings.TrimSpace(in.RegistrationNumber) == "" {
		errs.add("registrationNumber", "is required")
	}
	if err := errs.err(); err != nil {
		return store.Professional{}, err
	}

	p, err := s.repo.Professionals.Create(ctx, store.Professional{
		ID:                 util.NewID("pro"),
		Name:               strings.TrimSpace(in.Name),
		Email:              in.Email,
		Phone:              strings.TrimSpace(in.Phone),
		Profession:         in.Profession,
		Organisation:       strings.TrimSpace(in.Organisation),
		RegistrationNumber: strings.TrimSpace(in.RegistrationNumber),
		Status:             "PENDING",
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Professional{}, conflictError("EMAIL_EXISTS", "A professional with this email is already registered")
		}
		return store.Professional{}, err
	}
	return p, nil
}

func (s *Service) GetProfessional(ctx context.Context, actor Session, id string) (store.Professional, error) {
	if err := s.authorize(ctx, actor, rbac.ActionRead); err != nil {
		return store.Professional{}, err
	}
	p, err := s.repo.Professionals.Get(ctx, id)
	return p, orNotFound(err, "Professional not found")
}

func (s *Service) ListProfessionals(ctx context.Context, actor Session, filter store.ProfessionalFilter) ([]store.Professional, error) {
	if err := s.authorize(ctx, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	errs := fieldErrors{}
	if filter.Profession != "" && !professions[filter.Profession] {
		errs.add("profession", "is not a recognised profession")
	}
	if filter.Status != "" && !professionalStatuses[filter.Status] {
		errs.add("status", "is not a valid professional status")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.repo.Professionals.List(ctx, filter)
}

func (s *Service) setProfessionalStatus(ctx context.Context, actor Session, id, status string) (store.Professional, error) {
	if err := s.authorize(ctx, actor, rbac.ActionVerifyProfessionals); err != nil {
		return store.Professional{}, err
	}
	p, err := s.repo.Professionals.SetStatus(ctx, id, status, actor.UserID)
	if err != nil {
		return store.Professional{}, orNotFound(err, "Professional not found")
	}
	s.record(ctx, actor, audit.ActionProfessionalStatus, "professional", id, map[string]any{"status": status})
	return p, nil
}

func (s *Service) VerifyProfessional(ctx context.Context, actor Session, id string) (store.Professional, error) {
	return s.setProfessionalStatus(ctx, actor, id, "VERIFIED")
}

func (s *Service) RejectProfessional(ctx context.Context, actor Session, id string) (store.Professional, error) {
	return s.setProfessionalStatus(ctx, actor, id, "REJECTED")
}

func (s *Service) SuspendProfessional(ctx context.Context, actor Session, id string) (store.Professional, error) {
	return s.setProfessionalStatus(ctx, actor, id, "SUSPENDED")
}

// AppointToDevelopment adds a VERIFIED professional to a development team.
func (s *Service) AppointToDevelopment(ctx context.Context, actor Session, developmentID, professionalID, role string) (store.TeamMember, error) {
	if _, err := s.ownedDevelopment(ctx, actor, developmentID, rbac.ActionManageTeam); err != nil {
		return store.TeamMember{}, err
	}
	role = strings.TrimSpace(role)
	errs := fieldErrors{}
	if strings.TrimSpace(professionalID) == "" {
		errs.add("professionalId", "is required")
	}
	if role == "" {
		errs.add("role", "is required")
	}
	if err := errs.err(); err != nil {
		return store.TeamMember{}, err
	}
	p, err := s.repo.Professionals.Get(ctx, professionalID)
	if err != nil {
		return store.TeamMember{}, orNotFound(err, "Professional not found")
	}
	if p.Status != "VERIFIED" {
		return store.TeamMember{}, conflictError("PROFESSIONAL_NOT_VERIFIED", "Only verified professionals can be appointed")
	}
	m, err := s.repo.Professionals.Appoint(ctx, store.TeamMember{
		DevelopmentID:  developmentID,
		ProfessionalID: p.ID,
		Role:           role,
		Status:         "APPOINTED",
		AppointedBy:    actor.UserID,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.TeamMember{}, conflictError("ALREADY_APPOINTED", "Professional is already on this development team")
		}
		return store.TeamMember{}, err
	}
	m.Professional = p
	return m, nil
}

func (s *Service) ListTeam(ctx context.Context, actor Session, developmentID string) ([]store.TeamMember, error) {
	if _, err := s.GetDevelopment(ctx, actor, developmentID); err != nil {
		return nil, err
	}
	return s.repo.Professionals.Team(ctx, developmentID)
}

func (s *Service) UpdateTeamMemberStatus(ctx context.Context, actor Session, developmentID, professionalID, status string) error {
	if _, err := s.ownedDevelopment(ctx, actor, developmentID, rbac.ActionManageTeam); err != nil {
		return err
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	if !teamStatuses[status] {
		return fieldErrors{"status": "is not a valid team status"}.err()
	}
	err := s.repo.Professionals.SetTeamStatus(ctx, developmentID, professionalID, status)
	return orNotFound(err, "Team member not found")
}
