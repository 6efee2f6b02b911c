package rbac

// RoleAdmin bypasses every permission check.
const RoleAdmin = "admin"

// Permission names, formatted as resource.action.
const (
	PermInventoryView  = "inventory.view"
	PermInventoryEdit  = "inventory.edit"
	PermProductsView   = "products.view"
	PermProductsEdit   = "products.edit"
	PermPurchasesView  = "purchases.view"
	PermPurchasesEdit  = "purchases.edit"
	PermProductionView = "production.view"
	PermProductionEdit = "production.edit"
	PermAccountsView   = "accounts.view"
	PermAccountsEdit   = "accounts.edit"
	PermSalesView      = "sales.view"
	PermSalesEdit      = "sales.edit"
	PermReportsView    = "reports.view"
	PermSettingsEdit   = "settings.edit"
)

// Grant ties a permission to a role.
type Grant struct {
	Role       string `json:"role"`
	Permission string `json:"permission"`
}
