package httpapi

import _ "embed"

//go:embed templates/partials.tmpl
var partialsTemplateHTML string

//go:embed templates/auth.tmpl
var authTemplateHTML string

//go:embed templates/dashboard.tmpl
var dashboardTemplateHTML string

//go:embed templates/contacts.tmpl
var contactsTemplateHTML string

//go:embed templates/profile.tmpl
var profileTemplateHTML string

//go:embed templates/admin.tmpl
var adminTemplateHTML string

//go:embed templates/not_found.tmpl
var notFoundTemplateHTML string
