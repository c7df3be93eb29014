package catalog

import (
	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
)

const (
	RegisterUser = "register user"
	LoginUser    = "login user"
)

// Registrants must be adults of working age.
const (
	MinAge = 18
	MaxAge = 65
)

// Credentials describe the user registered by AuthScenarios.
type Credentials struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Age       int
}

// NewCredentials draws one user from p.
func NewCredentials(p builtin.Provider) Credentials {
	return Credentials{
		Email:     p.Email(),
		Password:  p.Password(),
		FirstName: p.FirstName(),
		LastName:  p.LastName(),
		Age:       p.IntBetween(MinAge, MaxAge),
	}
}

func (c Credentials) registration() map[string]any {
	return map[string]any{
		"email":     c.Email,
		"password":  c.Password,
		"firstname": c.FirstName,
		"lastname":  c.LastName,
		"age":       c.Age,
	}
}

func (c Credentials) login() map[string]any {
	return map[string]any{"email": c.Email, "password": c.Password}
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func sessionAssertions(email string) []*parser.Assertion {
	return []*parser.Assertion{
		parser.Satisfies("accessToken", "a non-empty string", nonEmptyString),
		parser.IsType("user.id", "number"),
		parser.Equals("user.email", email),
	}
}

// AuthScenarios registers a user drawn once from p, then logs in with the
// same credentials. A nil p gets a time-seeded provider.
func AuthScenarios(p builtin.Provider) []*parser.Scenario {
	if p == nil {
		p = builtin.NewProvider(0)
	}
	return AuthScenariosFor(NewCredentials(p))
}

// AuthScenariosFor builds the auth scenarios for fixed credentials.
func AuthScenariosFor(c Credentials) []*parser.Scenario {
	register := sessionAssertions(c.Email)
	register = append(register,
		parser.Equals("user.firstname", c.FirstName),
		parser.Equals("user.lastname", c.LastName),
		parser.Equals("user.age", c.Age),
	)

	return []*parser.Scenario{
		{
			Name:    RegisterUser,
			Tags:    []string{"auth", "write"},
			Request: parser.RequestSpec{Method: "POST", Path: "/register", Headers: jsonHeaders(), Body: c.registration()},
			Expect: parser.Expectation{
				Status: parser.Status(201),
				Body:   register,
			},
			Captures: []*parser.Capture{
				parser.CaptureFromBody("userId", "user.id"),
				parser.CaptureFromBody("registerToken", "accessToken"),
			},
		},
		{
			Name:        LoginUser,
			Description: "login answers 200 where register answers 201",
			Tags:        []string{"auth"},
			DependsOn:   []string{RegisterUser},
			Request:     parser.RequestSpec{Method: "POST", Path: "/login", Headers: jsonHeaders(), Body: c.login()},
			Expect: parser.Expectation{
				Status: parser.Status(200),
				Body: append(sessionAssertions(c.Email),
					parser.Equals("user.id", "{{userId}}"),
				),
			},
			Captures: []*parser.Capture{
				parser.CaptureFromBody("accessToken", "accessToken"),
			},
		},
	}
}

// All returns the posts contract followed by the auth scenarios.
func All(p builtin.Provider) []*parser.Scenario {
	return append(PostsScenarios(), AuthScenarios(p)...)
}
