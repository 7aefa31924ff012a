package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "buyer read", role: RoleBuyer, action: ActionRead, allow: true},
		{name: "buyer view sales", role: RoleBuyer, action: ActionViewSales, allow: true},
		{name: "buyer manage sales", role: RoleBuyer, action: ActionManageSales, allow: false},
		{name: "buyer manage units", role: RoleBuyer, action: ActionManageUnits, allow: false},
		{name: "agent manage sales", role: RoleAgent, action: ActionManageSales, allow: true},
		{name: "agent review documents", role: RoleAgent, action: ActionReviewDocuments, allow: false},
		{name: "solicitor review documents", role: RoleSolicitor, action: ActionReviewDocuments, allow: true},
		{name: "solicitor manage units", role: RoleSolicitor, action: ActionManageUnits, allow: false},
		{name: "developer manage units", role: RoleDeveloper, action: ActionManageUnits, allow: true},
		{name: "developer view audit", role: RoleDeveloper, action: ActionViewAudit, allow: false},
		{name: "developer verify professionals", role: RoleDeveloper, action: ActionVerifyProfessionals, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "admin audit", role: RoleAdmin, action: ActionViewAudit, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("developer") != RoleDeveloper {
		t.Fatal("expected developer to be kept")
	}
	if Normalize("editor") != RoleBuyer {
		t.Fatal("expected unknown role to fall back to buyer")
	}
	if Valid("editor") || !Valid("admin") {
		t.Fatal("Valid disagrees with Normalize")
	}
}
