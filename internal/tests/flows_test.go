package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// testServer holds the server under test and how to reset its state between sections.
type testServer struct {
	Server *httptest.Server
	Reset  func(t *testing.T)
}

func (s *testServer) BaseURL() string { return s.Server.URL }

// newClient returns a client with its own cookie jar, i.e. a fresh browser session.
func (s *testServer) newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := *s.Server.Client()
	c.Jar = jar
	return &c
}

// apiResponse matches both the success and the error envelope.
type apiResponse struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
}

// accountResponse matches the account object in response data.
type accountResponse struct {
	ID       string                     `json:"id"`
	Role     string                     `json:"role"`
	Username string                     `json:"username"`
	FullName string                     `json:"fullName"`
	Photo    *string                    `json:"photo"`
	Links    []string                   `json:"links"`
	Profile  map[string]json.RawMessage `json:"profile"`
}

// tokensResponse matches the token fields of login and refresh data.
type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func amitRegistration() map[string]any {
	return map[string]any{
		"username":     "amit",
		"password":     "pw123",
		"fullName":     "Amit",
		"role":         "student",
		"studentAge":   14,
		"schoolName":   "XYZ",
		"parentMobile": "9999999999",
		"studentStd":   "8",
	}
}

func teacherRegistration(username string) map[string]any {
	return map[string]any{
		"username":        username,
		"password":        "pw123",
		"fullName":        "Meera Rao",
		"role":            "teacher",
		"teacherAge":      35,
		"teacherMobile":   9888877777,
		"subjectSpecific": []string{"maths", "physics"},
		"teacherFees":     1500,
	}
}

// doJSON sends body as JSON and decodes the envelope. bearer, if set, goes in the Authorization header.
func doJSON(t *testing.T, client *http.Client, method, url string, body any, bearer string) (*http.Response, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return send(t, client, req)
}

func send(t *testing.T, client *http.Client, req *http.Request) (*http.Response, apiResponse) {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env apiResponse
	require.NoError(t, json.Unmarshal(raw, &env), "response must be a JSON envelope; body: %s", raw)
	return resp, env
}

func decodeData(t *testing.T, env apiResponse, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst), "data: %s", env.Data)
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// register creates an account on the role's route group and returns it.
func register(t *testing.T, ts *testServer, plural, role string, body map[string]any) accountResponse {
	t.Helper()
	resp, env := doJSON(t, ts.newClient(t), http.MethodPost, ts.BaseURL()+"/api/v1/"+plural+"/register-"+role, body, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register must return 201; message: %s", env.Message)
	var account accountResponse
	decodeData(t, env, &account)
	return account
}

// login signs in with client (so its jar holds the cookies) and returns the issued tokens.
func login(t *testing.T, ts *testServer, client *http.Client, plural, role, username, password string) tokensResponse {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, ts.BaseURL()+"/api/v1/"+plural+"/login-"+role,
		map[string]string{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "login must return 200; message: %s", env.Message)
	var tokens tokensResponse
	decodeData(t, env, &tokens)
	return tokens
}

// runAccountFlows exercises the public HTTP surface end to end.
func runAccountFlows(t *testing.T, ts *testServer) {
	students := ts.BaseURL() + "/api/v1/students"
	teachers := ts.BaseURL() + "/api/v1/teachers"

	t.Run("A_Health", func(t *testing.T) {
		resp, err := ts.Server.Client().Get(ts.BaseURL() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET /health must return 200")
		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body["ok"])
	})

	t.Run("B_RegisterLoginLogoutRefresh", func(t *testing.T) {
		ts.Reset(t)
		client := ts.newClient(t)

		resp, env := doJSON(t, client, http.MethodPost, students+"/register-student", amitRegistration(), "")
		require.Equal(t, http.StatusCreated, resp.StatusCode, "register must return 201; message: %s", env.Message)
		assert.True(t, env.Success)
		assert.NotContains(t, string(env.Data), "password")
		assert.NotContains(t, string(env.Data), "pw123")
		var account accountResponse
		decodeData(t, env, &account)
		assert.Equal(t, "amit", account.Username)
		assert.Equal(t, "student", account.Role)
		assert.JSONEq(t, `"XYZ"`, string(account.Profile["schoolName"]))

		resp, env = doJSON(t, client, http.MethodPost, students+"/login-student",
			map[string]string{"username": "amit", "password": "pw123"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "login must return 200; message: %s", env.Message)
		access := cookieNamed(resp, "accessToken")
		refresh := cookieNamed(resp, "refreshToken")
		require.NotNil(t, access, "login must set the accessToken cookie")
		require.NotNil(t, refresh, "login must set the refreshToken cookie")
		assert.True(t, access.HttpOnly)
		assert.True(t, refresh.HttpOnly)
		var tokens tokensResponse
		decodeData(t, env, &tokens)
		assert.NotEmpty(t, tokens.AccessToken)
		assert.NotEmpty(t, tokens.RefreshToken)
		assert.Equal(t, access.Value, tokens.AccessToken)
		assert.NotContains(t, string(env.Data), "password")

		resp, env = doJSON(t, client, http.MethodPost, students+"/logout-student", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "logout must return 200; message: %s", env.Message)
		cleared := cookieNamed(resp, "refreshToken")
		require.NotNil(t, cleared)
		assert.True(t, cleared.MaxAge < 0, "logout must expire the refresh cookie")

		resp, env = doJSON(t, ts.newClient(t), http.MethodPost, students+"/refresh-accessToken",
			map[string]string{"refreshToken": tokens.RefreshToken}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "refresh after logout must return 401")
		assert.False(t, env.Success)
	})

	t.Run("C_RegisterValidation", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())

		dup := amitRegistration()
		dup["username"] = "  AMIT "
		resp, env := doJSON(t, ts.newClient(t), http.MethodPost, students+"/register-student", dup, "")
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "case-insensitive duplicate must return 409; message: %s", env.Message)

		// Same username is free for the other role.
		sameName := teacherRegistration("amit")
		resp, env = doJSON(t, ts.newClient(t), http.MethodPost, teachers+"/register-teacher", sameName, "")
		assert.Equal(t, http.StatusCreated, resp.StatusCode, "message: %s", env.Message)

		noRole := amitRegistration()
		noRole["username"] = "ravi"
		delete(noRole, "role")
		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/register-student", noRole, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing role must return 400")

		wrongRole := amitRegistration()
		wrongRole["username"] = "ravi"
		wrongRole["role"] = "teacher"
		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/register-student", wrongRole, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "role of another route group must return 400")

		noPassword := amitRegistration()
		noPassword["username"] = "ravi"
		noPassword["password"] = ""
		resp, env = doJSON(t, ts.newClient(t), http.MethodPost, students+"/register-student", noPassword, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "password is required", env.Message)

		longPassword := amitRegistration()
		longPassword["username"] = "ravi"
		longPassword["password"] = strings.Repeat("p", 80)
		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/register-student", longPassword, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "password over 72 bytes must return 400")
	})

	t.Run("D_LoginFailures", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())

		resp, env := doJSON(t, ts.newClient(t), http.MethodPost, students+"/login-student",
			map[string]string{"username": "amit", "password": "wrong"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		wrongPassword := env.Message

		resp, env = doJSON(t, ts.newClient(t), http.MethodPost, students+"/login-student",
			map[string]string{"username": "nobody", "password": "pw123"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, wrongPassword, env.Message, "unknown user and wrong password must be indistinguishable")

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, teachers+"/login-teacher",
			map[string]string{"username": "amit", "password": "pw123"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "student credentials must not log in as teacher")

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/login-student",
			map[string]string{"username": "amit"}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("E_SessionMiddleware", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())
		tokens := login(t, ts, ts.newClient(t), "students", "student", "amit", "pw123")

		// Bearer header only, no cookie jar.
		resp, env := doJSON(t, ts.Server.Client(), http.MethodGet, students+"/get-student", nil, tokens.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode, "message: %s", env.Message)
		var account accountResponse
		decodeData(t, env, &account)
		assert.Equal(t, "amit", account.Username)
		assert.NotContains(t, string(env.Data), "refreshToken")

		resp, _ = doJSON(t, ts.Server.Client(), http.MethodGet, students+"/get-student", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "missing token must return 401")

		resp, _ = doJSON(t, ts.Server.Client(), http.MethodGet, students+"/get-student", nil, tokens.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "refresh token must not pass as access token")

		resp, _ = doJSON(t, ts.Server.Client(), http.MethodGet, teachers+"/get-teacher", nil, tokens.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "student token must not open teacher routes")
	})

	t.Run("F_RefreshRotation", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())
		client := ts.newClient(t)
		first := login(t, ts, client, "students", "student", "amit", "pw123")

		// Cookie carries the token.
		resp, env := doJSON(t, client, http.MethodPost, students+"/refresh-accessToken", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "refresh via cookie must return 200; message: %s", env.Message)
		var second tokensResponse
		decodeData(t, env, &second)
		assert.NotEmpty(t, second.AccessToken)
		assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
		require.NotNil(t, cookieNamed(resp, "refreshToken"), "refresh must reset the cookies")

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/refresh-accessToken",
			map[string]string{"refreshToken": first.RefreshToken}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "superseded refresh token must return 401")

		resp, env = doJSON(t, ts.newClient(t), http.MethodPost, students+"/refresh-accessToken",
			map[string]string{"refreshToken": second.RefreshToken}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "latest refresh token via body must return 200; message: %s", env.Message)

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/refresh-accessToken",
			map[string]string{"refreshToken": second.RefreshToken}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "second use of a refresh token must return 401")

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/refresh-accessToken", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "absent refresh token must return 401")
	})

	t.Run("G_ChangePassword", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())
		client := ts.newClient(t)
		login(t, ts, client, "students", "student", "amit", "pw123")

		resp, _ := doJSON(t, client, http.MethodPost, students+"/change-password",
			map[string]string{"password": "wrong", "newPassword": "pw456"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = doJSON(t, client, http.MethodPost, students+"/change-password",
			map[string]string{"password": "pw123"}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = doJSON(t, client, http.MethodPost, students+"/change-password",
			map[string]string{"password": "pw123", "newPassword": strings.Repeat("p", 80)}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "new password over 72 bytes must return 400")

		resp, env := doJSON(t, client, http.MethodPost, students+"/change-password",
			map[string]string{"password": "pw123", "newPassword": "pw456"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "message: %s", env.Message)

		resp, _ = doJSON(t, ts.newClient(t), http.MethodPost, students+"/login-student",
			map[string]string{"username": "amit", "password": "pw123"}, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old password must stop working")
		login(t, ts, ts.newClient(t), "students", "student", "amit", "pw456")
	})

	t.Run("H_UpdateProfile", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())
		client := ts.newClient(t)
		login(t, ts, client, "students", "student", "amit", "pw123")

		resp, env := doJSON(t, client, http.MethodPatch, students+"/update-studentProfile",
			map[string]any{"schoolName": "ABC", "fullName": "Amit Kumar"}, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "message: %s", env.Message)
		var account accountResponse
		decodeData(t, env, &account)
		assert.Equal(t, "Amit Kumar", account.FullName)
		assert.JSONEq(t, `"ABC"`, string(account.Profile["schoolName"]))
		assert.JSONEq(t, `"8"`, string(account.Profile["studentStd"]), "untouched fields must be kept")

		resp, _ = doJSON(t, client, http.MethodPatch, students+"/update-studentProfile", map[string]any{}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty update must return 400")

		resp, _ = doJSON(t, client, http.MethodPatch, students+"/update-studentProfile",
			map[string]any{"studentAge": -3}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "invalid profile must return 400")

		resp, _ = doJSON(t, client, http.MethodPatch, students+"/update-studentProfile",
			map[string]any{"username": "hijack"}, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "username is not editable")
	})

	t.Run("I_Avatar", func(t *testing.T) {
		ts.Reset(t)
		register(t, ts, "students", "student", amitRegistration())
		client := ts.newClient(t)
		login(t, ts, client, "students", "student", "amit", "pw123")

		resp, env := uploadPhoto(t, client, students+"/avatar-student", "studentPhoto", pngHeader)
		require.Equal(t, http.StatusOK, resp.StatusCode, "message: %s", env.Message)
		var account accountResponse
		decodeData(t, env, &account)
		require.NotNil(t, account.Photo)
		assert.Regexp(t, `^/media/.+\.png$`, *account.Photo)

		photo, err := ts.Server.Client().Get(ts.BaseURL() + *account.Photo)
		require.NoError(t, err)
		defer photo.Body.Close()
		assert.Equal(t, http.StatusOK, photo.StatusCode, "uploaded photo must be served")

		resp, _ = uploadPhoto(t, client, students+"/avatar-student", "photo", pngHeader)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "generic photo field must be accepted")

		resp, _ = uploadPhoto(t, client, students+"/avatar-student", "studentPhoto", []byte("just some text"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "non-image upload must return 400")

		resp, _ = uploadPhoto(t, client, students+"/avatar-student", "other", pngHeader)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing file field must return 400")
	})

	t.Run("J_Link", func(t *testing.T) {
		ts.Reset(t)
		student := register(t, ts, "students", "student", amitRegistration())
		teacher := register(t, ts, "teachers", "teacher", teacherRegistration("meera"))
		client := ts.newClient(t)
		login(t, ts, client, "students", "student", "amit", "pw123")

		resp, env := doJSON(t, client, http.MethodPut, students+"/link/"+teacher.ID, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "message: %s", env.Message)
		var account accountResponse
		decodeData(t, env, &account)
		assert.Equal(t, []string{teacher.ID}, account.Links)

		// Idempotent.
		resp, env = doJSON(t, client, http.MethodPut, students+"/link/"+teacher.ID, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decodeData(t, env, &account)
		assert.Len(t, account.Links, 1)

		teacherClient := ts.newClient(t)
		login(t, ts, teacherClient, "teachers", "teacher", "meera", "pw123")
		resp, env = doJSON(t, teacherClient, http.MethodGet, teachers+"/get-teacher", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decodeData(t, env, &account)
		assert.Equal(t, []string{student.ID}, account.Links, "link must be recorded on both sides")

		resp, _ = doJSON(t, client, http.MethodPut, students+"/link/"+student.ID, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "same-role target must return 404")

		resp, _ = doJSON(t, client, http.MethodPut, students+"/link/not-a-uuid", nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func uploadPhoto(t *testing.T, client *http.Client, url, field string, content []byte) (*http.Response, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, "avatar.bin")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPatch, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return send(t, client, req)
}
