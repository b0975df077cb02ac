package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/juanlms/quizcore/internal/quiz"
	"github.com/juanlms/quizcore/internal/rbac"
	"github.com/juanlms/quizcore/pkg/logger"
)

// AttachRoleFromRoster replaces the token's role claim with the role stored
// for the subject. allowClaimFallback=true keeps the claim for subjects the
// roster does not know (dev/offline); admins always keep theirs.
func AttachRoleFromRoster(roster quiz.Roster, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx) // set by JWTMiddleware

			u, err := roster.User(ctx, sub)
			switch {
			case err == nil && u.Role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, u.Role)))

			case err == nil || errors.Is(err, quiz.ErrStudentNotFound):
				if claimRole == quiz.RoleAdmin || (allowClaimFallback && claimRole != "") {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)

			default:
				logger.FromContext(ctx).Error("role lookup", zap.String("subject", sub), zap.Error(err))
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
