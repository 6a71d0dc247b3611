package shared

// Route policy keys looked up by the access guard.
const (
	RouteAuthProfile = "auth.profile"

	RouteUsersView = "users.view"
	RouteUsersEdit = "users.edit"

	RouteJobsView = "jobs.view"
)

// CoreRoutes lists every protected route key.
func CoreRoutes() []string {
	return []string{
		RouteAuthProfile,
		RouteUsersView,
		RouteUsersEdit,
		RouteJobsView,
	}
}
