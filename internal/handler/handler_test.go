package handler

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/stock-image-platform/internal/middleware"
    "github.com/iliyamo/stock-image-platform/internal/model"
    "github.com/iliyamo/stock-image-platform/internal/service"
    "github.com/iliyamo/stock-image-platform/internal/utils"
    "github.com/iliyamo/stock-image-platform/internal/validate"
)

type stubAuth struct {
    register func(service.RegisterInput) (utils.AccessToken, error)
    login    func(email, pw string) (utils.AccessToken, error)
    reset    func(email string) (utils.ResetToken, error)
    change   func(uid, cur, next string) (bool, error)
    me       func(uid string) (model.Profile, error)
}

func (s stubAuth) Register(_ context.Context, in service.RegisterInput) (utils.AccessToken, error) {
    return s.register(in)
}
func (s stubAuth) Login(_ context.Context, e, p string) (utils.AccessToken, error) { return s.login(e, p) }
func (s stubAuth) RequestPasswordReset(_ context.Context, e string) (utils.ResetToken, error) {
    return s.reset(e)
}
func (s stubAuth) ResetPassword(context.Context, string, string) error { return nil }
func (s stubAuth) ChangePassword(_ context.Context, uid, cur, next string) (bool, error) {
    return s.change(uid, cur, next)
}
func (s stubAuth) Me(_ context.Context, uid string) (model.Profile, error) { return s.me(uid) }

type stubImages struct {
    uploaded []service.Upload
    titles   []string
    reorder  []model.OrderUpdate
    edit     *service.Upload
    err      error
}

func (s *stubImages) UploadBatch(_ context.Context, uid string, files []service.Upload, titles []string) ([]model.Image, error) {
    s.uploaded, s.titles = files, titles
    if s.err != nil {
        return nil, s.err
    }
    out := make([]model.Image, len(files))
    for i := range files {
        out[i] = model.Image{ID: string(rune('a' + i)), UserID: uid, Order: i + 1}
    }
    return out, nil
}
func (s *stubImages) List(_ context.Context, uid string) ([]model.Image, error) {
    return []model.Image{{ID: "1", UserID: uid, Order: 1}}, s.err
}
func (s *stubImages) Get(_ context.Context, uid, id string) (model.Image, error) {
    return model.Image{ID: id, UserID: uid}, s.err
}
func (s *stubImages) Delete(context.Context, string, string) error { return s.err }
func (s *stubImages) Reorder(_ context.Context, _ string, items []model.OrderUpdate) error {
    s.reorder = items
    return s.err
}
func (s *stubImages) RenameTitle(context.Context, string, string, string) error { return s.err }
func (s *stubImages) Edit(_ context.Context, uid, id, title string, r *service.Upload) (model.Image, error) {
    s.edit = r
    return model.Image{ID: id, UserID: uid, Title: title}, s.err
}

func newEcho() *echo.Echo {
    e := echo.New()
    e.Validator = validate.New()
    return e
}

func serve(t *testing.T, e *echo.Echo, h echo.HandlerFunc, req *http.Request, uid string) (*httptest.ResponseRecorder, Response) {
    t.Helper()
    rec := httptest.NewRecorder()
    c := e.NewContext(req, rec)
    if uid != "" {
        c.Set(middleware.UserIDKey, uid)
    }
    require.NoError(t, h(c))
    var body Response
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
    return rec, body
}

func jsonReq(method, target, body string) *http.Request {
    req := httptest.NewRequest(method, target, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    return req
}

func TestStatusOf(t *testing.T) {
    cases := map[error]int{
        service.ErrValidation:    http.StatusBadRequest,
        service.ErrUnauthorized:  http.StatusUnauthorized,
        service.ErrForbidden:     http.StatusForbidden,
        service.ErrNotFound:      http.StatusNotFound,
        service.ErrConflict:      http.StatusConflict,
        service.ErrStorage:       http.StatusInternalServerError,
        errors.New("boom"):       http.StatusInternalServerError,
        context.DeadlineExceeded: http.StatusGatewayTimeout,
    }
    for err, want := range cases {
        assert.Equal(t, want, statusOf(&service.Error{Kind: err, Message: "x"}), err.Error())
    }
}

func TestSignupCreated(t *testing.T) {
    exp := time.Now().Add(time.Hour)
    var got service.RegisterInput
    h := NewAuthHandler(stubAuth{register: func(in service.RegisterInput) (utils.AccessToken, error) {
        got = in
        return utils.AccessToken{Token: "tok", Exp: exp}, nil
    }}, nil, false)

    body := `{"email":"a@b.co","username":"ann","phoneNumber":"+15551234","password":"secret1"}`
    rec, resp := serve(t, newEcho(), h.Signup, jsonReq(http.MethodPost, "/api/auth/signup", body), "")

    assert.Equal(t, http.StatusCreated, rec.Code)
    assert.True(t, resp.Success)
    assert.Equal(t, "+15551234", got.PhoneNumber)
    assert.Equal(t, "tok", resp.Data.(map[string]interface{})["token"])
}

func TestSignupConflictAndValidation(t *testing.T) {
    h := NewAuthHandler(stubAuth{register: func(service.RegisterInput) (utils.AccessToken, error) {
        return utils.AccessToken{}, &service.Error{Kind: service.ErrConflict, Message: "User already exists"}
    }}, nil, false)
    rec, resp := serve(t, newEcho(), h.Signup, jsonReq(http.MethodPost, "/", `{"email":"a@b.co"}`), "")
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.False(t, resp.Success)
    assert.Equal(t, "User already exists", resp.Message)

    h.Auth = stubAuth{register: func(service.RegisterInput) (utils.AccessToken, error) {
        return utils.AccessToken{}, &service.Error{Kind: service.ErrValidation, Message: "validation failed",
            Fields: validate.Errors{{Field: "email", Tag: "email", Message: "email must be a valid email"}}}
    }}
    rec, resp = serve(t, newEcho(), h.Signup, jsonReq(http.MethodPost, "/", `{}`), "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, rec.Body.String(), `"field":"email"`)
    assert.False(t, resp.Success)
}

func TestLoginErrors(t *testing.T) {
    h := NewAuthHandler(stubAuth{login: func(email, _ string) (utils.AccessToken, error) {
        if email == "nobody@x.io" {
            return utils.AccessToken{}, &service.Error{Kind: service.ErrNotFound, Message: "User not found"}
        }
        return utils.AccessToken{}, &service.Error{Kind: service.ErrUnauthorized, Message: "Invalid credentials"}
    }}, nil, false)

    rec, _ := serve(t, newEcho(), h.Login, jsonReq(http.MethodPost, "/", `{"email":"nobody@x.io","password":"p"}`), "")
    assert.Equal(t, http.StatusNotFound, rec.Code)
    rec, resp := serve(t, newEcho(), h.Login, jsonReq(http.MethodPost, "/", `{"email":"a@x.io","password":"p"}`), "")
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
    assert.Equal(t, "Invalid credentials", resp.Message)
}

func TestInternalErrorHidesCause(t *testing.T) {
    h := NewAuthHandler(stubAuth{login: func(string, string) (utils.AccessToken, error) {
        return utils.AccessToken{}, errors.New("dial tcp 10.0.0.1:3306: refused")
    }}, nil, false)
    rec, resp := serve(t, newEcho(), h.Login, jsonReq(http.MethodPost, "/", `{"email":"a@x.io","password":"p"}`), "")
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Equal(t, "Internal server error", resp.Message)
    assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestRequestPasswordResetHidesToken(t *testing.T) {
    auth := stubAuth{reset: func(string) (utils.ResetToken, error) {
        return utils.ResetToken{Raw: "raw-secret", Exp: time.Now().Add(time.Hour)}, nil
    }}
    rec, resp := serve(t, newEcho(), NewAuthHandler(auth, nil, false).RequestPasswordReset,
        jsonReq(http.MethodPost, "/", `{"email":"a@x.io"}`), "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, resp.Success)
    assert.NotContains(t, rec.Body.String(), "raw-secret")

    rec, _ = serve(t, newEcho(), NewAuthHandler(auth, nil, true).RequestPasswordReset,
        jsonReq(http.MethodPost, "/", `{"email":"a@x.io"}`), "")
    assert.Contains(t, rec.Body.String(), "raw-secret")
}

func TestChangePasswordWrongCurrent(t *testing.T) {
    var uid string
    h := NewAuthHandler(stubAuth{change: func(u, cur, _ string) (bool, error) {
        uid = u
        return cur == "right", nil
    }}, nil, false)

    rec, resp := serve(t, newEcho(), h.ChangePassword,
        jsonReq(http.MethodPost, "/", `{"currentPassword":"wrong","newPassword":"newpass"}`), "7")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.False(t, resp.Success)
    assert.Equal(t, "Current Password is Wrong", resp.Message)
    assert.Equal(t, "7", uid)

    _, resp = serve(t, newEcho(), h.ChangePassword,
        jsonReq(http.MethodPost, "/", `{"currentPassword":"right","newPassword":"newpass"}`), "7")
    assert.True(t, resp.Success)
}

func TestMe(t *testing.T) {
    h := NewAuthHandler(stubAuth{me: func(uid string) (model.Profile, error) {
        return model.Profile{ID: uid, Email: "a@x.io"}, nil
    }}, nil, false)
    rec, resp := serve(t, newEcho(), h.Me, httptest.NewRequest(http.MethodGet, "/", nil), "9")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "9", resp.Data.(map[string]interface{})["_id"])
}

func multipartReq(t *testing.T, method string, files map[string][]string, values map[string][]string) *http.Request {
    t.Helper()
    var buf bytes.Buffer
    w := multipart.NewWriter(&buf)
    for field, names := range files {
        for _, n := range names {
            fw, err := w.CreateFormFile(field, n)
            require.NoError(t, err)
            _, err = fw.Write([]byte("data-" + n))
            require.NoError(t, err)
        }
    }
    for field, vs := range values {
        for _, v := range vs {
            require.NoError(t, w.WriteField(field, v))
        }
    }
    require.NoError(t, w.Close())
    req := httptest.NewRequest(method, "/", &buf)
    req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
    return req
}

func TestUploadReadsFilesAndTitles(t *testing.T) {
    imgs := &stubImages{}
    h := NewImageHandler(imgs, nil)
    req := multipartReq(t, http.MethodPost,
        map[string][]string{"images": {"a.png", "b.png"}},
        map[string][]string{"titles": {"first", "second"}})

    rec, resp := serve(t, newEcho(), h.Upload, req, "5")
    assert.Equal(t, http.StatusCreated, rec.Code)
    assert.True(t, resp.Success)
    require.Len(t, imgs.uploaded, 2)
    assert.Equal(t, "a.png", imgs.uploaded[0].Filename)
    assert.Equal(t, []byte("data-a.png"), imgs.uploaded[0].Data)
    assert.Equal(t, []string{"first", "second"}, imgs.titles)
    assert.Len(t, resp.Data, 2)
}

func TestUploadRejectsMissingFiles(t *testing.T) {
    h := NewImageHandler(&stubImages{}, nil)
    rec, resp := serve(t, newEcho(), h.Upload,
        multipartReq(t, http.MethodPost, nil, map[string][]string{"titles": {"x"}}), "5")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Equal(t, "No files uploaded", resp.Message)

    rec, _ = serve(t, newEcho(), h.Upload, jsonReq(http.MethodPost, "/", `{}`), "5")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderBindsArray(t *testing.T) {
    imgs := &stubImages{}
    h := NewImageHandler(imgs, nil)
    rec, resp := serve(t, newEcho(), h.UpdateOrder,
        jsonReq(http.MethodPut, "/", `[{"_id":"3","order":0},{"_id":"1","order":1}]`), "5")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, resp.Success)
    assert.Equal(t, []model.OrderUpdate{{ID: "3", Order: 0}, {ID: "1", Order: 1}}, imgs.reorder)

    rec, _ = serve(t, newEcho(), h.UpdateOrder, jsonReq(http.MethodPut, "/", `{"_id":"3"}`), "5")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageErrorsMapToStatus(t *testing.T) {
    imgs := &stubImages{err: &service.Error{Kind: service.ErrForbidden, Message: "You do not have access to this image"}}
    h := NewImageHandler(imgs, nil)
    e := newEcho()

    rec, resp := serve(t, e, h.DeleteImage, httptest.NewRequest(http.MethodDelete, "/", nil), "5")
    assert.Equal(t, http.StatusForbidden, rec.Code)
    assert.False(t, resp.Success)

    imgs.err = &service.Error{Kind: service.ErrNotFound, Message: "Image not found"}
    rec, _ = serve(t, e, h.EditTitle, jsonReq(http.MethodPut, "/", `{"title":"t"}`), "5")
    assert.Equal(t, http.StatusNotFound, rec.Code)

    imgs.err = &service.Error{Kind: service.ErrStorage, Message: "Failed to delete image file"}
    rec, resp = serve(t, e, h.DeleteImage, httptest.NewRequest(http.MethodDelete, "/", nil), "5")
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Equal(t, "Failed to delete image file", resp.Message)
}

func TestEditOptionalFile(t *testing.T) {
    imgs := &stubImages{}
    h := NewImageHandler(imgs, nil)

    rec, resp := serve(t, newEcho(), h.Edit,
        multipartReq(t, http.MethodPut, nil, map[string][]string{"title": {"renamed"}}), "5")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Nil(t, imgs.edit)
    assert.Equal(t, "renamed", resp.Data.(map[string]interface{})["title"])

    _, _ = serve(t, newEcho(), h.Edit,
        multipartReq(t, http.MethodPut, map[string][]string{"image": {"new.png"}}, nil), "5")
    require.NotNil(t, imgs.edit)
    assert.Equal(t, "new.png", imgs.edit.Filename)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
    e := newEcho()
    rec := httptest.NewRecorder()
    require.NoError(t, Health(pinger{})(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "ok", rec.Body.String())

    rec = httptest.NewRecorder()
    require.NoError(t, Health(pinger{err: errors.New("down")})(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
