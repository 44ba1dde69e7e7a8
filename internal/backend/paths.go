package backend

import "fmt"

// Auth endpoints
const (
	PathLogin        = "/api/auth/broker/login"
	PathVerifyTwoFA  = "/api/auth/broker/verify-2fa"
	PathLogout       = "/api/auth/logout"
	PathTwoFASetup   = "/api/auth/broker/2fa/setup"
	PathTwoFAEnable  = "/api/auth/broker/2fa/enable"
	PathTwoFADisable = "/api/auth/broker/2fa/disable"
	PathTwoFAStatus  = "/api/auth/broker/2fa/status"
	PathBackupCodes  = "/api/auth/broker/2fa/backup-codes"
)

// Broker endpoints
const (
	PathClients           = "/api/broker/clients"
	PathClientSearch      = "/api/broker/clients/search"
	PathClientFields      = "/api/broker/clients/fields"
	PathClientPercentages = "/api/broker/clients/percentages"
	PathRules             = "/api/broker/rules"
)

// IB endpoints
const (
	PathCommissions       = "/api/amari/ib/commissions"
	PathCommissionsTotal  = "/api/amari/ib/commissions/total"
	PathBulkPercentage    = "/api/amari/ib/commissions/percentage/bulk"
	PathIBEmails          = "/api/amari/ib/emails"
	PathIBEmailsLegacy    = "/api/amari/ib/commissions/emails"
	PathMT5Accounts       = "/api/amari/ib/mt5-accounts"
	pathMT5AccountsByIB   = "/api/amari/ib/%s/mt5-accounts"
	pathClient            = "/api/broker/clients/%d"
	pathCommissionPercent = "/api/amari/ib/commissions/%d/percentage"
)

func clientPath(login int64, suffix string) string {
	return fmt.Sprintf(pathClient, login) + suffix
}

func commissionPercentagePath(id int64) string {
	return fmt.Sprintf(pathCommissionPercent, id)
}

func mt5AccountsByIBPath(email string) string {
	return fmt.Sprintf(pathMT5AccountsByIB, escape(email))
}
