package rbac

const (
	PermQuizView      = "quiz:view"
	PermQuizSubmit    = "quiz:submit"
	PermQuizCreate    = "quiz:create"
	PermResultViewOwn = "result:view-own"
	PermResultViewAll = "result:view-all"
)

// Default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermQuizView,
		PermQuizSubmit,
		PermResultViewOwn,
	},
	"teacher": {
		PermQuizView,
		PermQuizCreate,
		"result:*",
	},
	"admin": {
		"*", // everything
	},
}
