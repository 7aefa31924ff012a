package rbac

type Role string
type Action string

const (
	RoleBuyer     Role = "buyer"
	RoleAgent     Role = "agent"
	RoleSolicitor Role = "solicitor"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead                Action = "read"
	ActionViewSales           Action = "view_sales"
	ActionManageSales         Action = "manage_sales"
	ActionManageDevelopments  Action = "manage_developments"
	ActionManageUnits         Action = "manage_units"
	ActionManageTeam          Action = "manage_team"
	ActionUploadDocuments     Action = "upload_documents"
	ActionReviewDocuments     Action = "review_documents"
	ActionVerifyProfessionals Action = "verify_professionals"
	ActionViewAudit           Action = "view_audit"
	ActionAdmin               Action = "admin"
)

var grants = map[Role]map[Action]bool{
	RoleBuyer: {
		ActionRead:            true,
		ActionViewSales:       true,
		ActionUploadDocuments: true,
	},
	RoleAgent: {
		ActionRead:            true,
		ActionViewSales:       true,
		ActionManageSales:     true,
		ActionUploadDocuments: true,
	},
	RoleSolicitor: {
		ActionRead:            true,
		ActionViewSales:       true,
		ActionUploadDocuments: true,
		ActionReviewDocuments: true,
	},
	RoleDeveloper: {
		ActionRead:               true,
		ActionViewSales:          true,
		ActionManageSales:        true,
		ActionManageDevelopments: true,
		ActionManageUnits:        true,
		ActionManageTeam:         true,
		ActionUploadDocuments:    true,
		ActionReviewDocuments:    true,
	},
}

func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return grants[role][action]
}

// Normalize maps unknown or empty roles to the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleBuyer, RoleAgent, RoleSolicitor, RoleDeveloper, RoleAdmin:
		return Role(role)
	default:
		return RoleBuyer
	}
}

// Valid reports whether role names a known role.
func Valid(role string) bool {
	return Normalize(role) == Role(role)
}
