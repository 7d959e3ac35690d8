package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderCompanyID lets callers name their company explicitly.
const HeaderCompanyID = "X-Company-ID"

// Tenant resolves the company every request is scoped to. The token claim
// wins; the header may only repeat it. Tokens without a company claim may
// pick one through the header only when they carry the admin role. Must run
// after Auth.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(HeaderCompanyID))

		var claimed string
		if claims := GetClaims(c); claims != nil {
			claimed = claims.CompanyID
		}

		switch {
		case claimed != "" && header != "" && header != claimed:
			abort(c, http.StatusForbidden, "Company does not match the authenticated user")
			return
		case claimed == "" && !IsAdmin(c):
			abort(c, http.StatusForbidden, "Token is not bound to a company")
			return
		case claimed == "" && header == "":
			abort(c, http.StatusBadRequest, "Company is required")
			return
		}

		companyID := claimed
		if companyID == "" {
			companyID = header
		}
		c.Set(ctxCompanyID, companyID)
		c.Next()
	}
}

// GetCompanyID returns the company resolved by Tenant
func GetCompanyID(c *gin.Context) string {
	return c.GetString(ctxCompanyID)
}
