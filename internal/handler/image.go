package handler

import (
    "context"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/stock-image-platform/internal/middleware"
    "github.com/iliyamo/stock-image-platform/internal/model"
    "github.com/iliyamo/stock-image-platform/internal/service"
)

// ImageAPI is the collection logic ImageHandler drives.  *service.ImageService
// implements it.
type ImageAPI interface {
    UploadBatch(ctx context.Context, userID string, files []service.Upload, titles []string) ([]model.Image, error)
    List(ctx context.Context, userID string) ([]model.Image, error)
    Get(ctx context.Context, userID, id string) (model.Image, error)
    Delete(ctx context.Context, userID, id string) error
    Reorder(ctx context.Context, userID string, items []model.OrderUpdate) error
    RenameTitle(ctx context.Context, userID, id, title string) error
    Edit(ctx context.Context, userID, id, title string, replacement *service.Upload) (model.Image, error)
}

// ImageHandler serves /api/image.
type ImageHandler struct {
    Images ImageAPI
    Log    *zap.Logger
}

func NewImageHandler(images ImageAPI, log *zap.Logger) *ImageHandler {
    if log == nil {
        log = zap.NewNop()
    }
    return &ImageHandler{Images: images, Log: log}
}

type titleReq struct {
    Title string `json:"title"`
}

// Upload accepts multipart field "images" (one or more files) and optional
// repeated "titles" values, and appends the files to the collection.
func (h *ImageHandler) Upload(c echo.Context) error {
    form, err := c.MultipartForm()
    if err != nil {
        return failure(c, http.StatusBadRequest, "Expected a multipart form")
    }
    headers := formFiles(form, "images")
    if len(headers) == 0 {
        return failure(c, http.StatusBadRequest, "No files uploaded")
    }
    files := make([]service.Upload, 0, len(headers))
    for _, fh := range headers {
        up, err := readUpload(fh)
        if err != nil {
            return failure(c, http.StatusBadRequest, fmt.Sprintf("Could not read %s", fh.Filename))
        }
        files = append(files, up)
    }
    titles := formValues(form, "titles")

    ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
    defer cancel()

    imgs, err := h.Images.UploadBatch(ctx, middleware.UserID(c), files, titles)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusCreated, "Images uploaded successfully", imgs)
}

// GetImages lists the caller's images in display order.
func (h *ImageHandler) GetImages(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    imgs, err := h.Images.List(ctx, middleware.UserID(c))
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Images fetched successfully", imgs)
}

func (h *ImageHandler) GetImage(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    img, err := h.Images.Get(ctx, middleware.UserID(c), c.Param("id"))
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Image fetched successfully", img)
}

// UpdateOrder takes the full or partial list of [{_id, order}] pairs.  It
// serves both PUT /updateOrder and PUT /rearrange.
func (h *ImageHandler) UpdateOrder(c echo.Context) error {
    var items []model.OrderUpdate
    if err := c.Bind(&items); err != nil {
        return failure(c, http.StatusBadRequest, "Expected an array of {_id, order}")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Images.Reorder(ctx, middleware.UserID(c), items); err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Image order updated successfully", nil)
}

func (h *ImageHandler) DeleteImage(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Images.Delete(ctx, middleware.UserID(c), c.Param("id")); err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Image deleted successfully", nil)
}

// EditTitle renames an image.  Body: {"title": "..."}.
func (h *ImageHandler) EditTitle(c echo.Context) error {
    var req titleReq
    if err := c.Bind(&req); err != nil {
        return failure(c, http.StatusBadRequest, "Invalid request body")
    }
    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Images.RenameTitle(ctx, middleware.UserID(c), c.Param("id"), req.Title); err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Image title updated successfully", nil)
}

// Edit takes a multipart form with "title" and an optional replacement file
// in "image".
func (h *ImageHandler) Edit(c echo.Context) error {
    form, err := c.MultipartForm()
    if err != nil {
        return failure(c, http.StatusBadRequest, "Expected a multipart form")
    }
    var replacement *service.Upload
    if fhs := formFiles(form, "image"); len(fhs) > 0 {
        up, err := readUpload(fhs[0])
        if err != nil {
            return failure(c, http.StatusBadRequest, fmt.Sprintf("Could not read %s", fhs[0].Filename))
        }
        replacement = &up
    }
    var title string
    if vs := formValues(form, "title"); len(vs) > 0 {
        title = vs[0]
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
    defer cancel()

    img, err := h.Images.Edit(ctx, middleware.UserID(c), c.Param("id"), title, replacement)
    if err != nil {
        return fromError(c, h.Log, err)
    }
    return ok(c, http.StatusOK, "Image updated successfully", img)
}

// formFiles accepts both "name" and the bracketed "name[]" some form
// libraries send.
func formFiles(form *multipart.Form, name string) []*multipart.FileHeader {
    return append(form.File[name], form.File[name+"[]"]...)
}

func formValues(form *multipart.Form, name string) []string {
    return append(form.Value[name], form.Value[name+"[]"]...)
}

func readUpload(fh *multipart.FileHeader) (service.Upload, error) {
    f, err := fh.Open()
    if err != nil {
        return service.Upload{}, err
    }
    defer f.Close()
    data, err := io.ReadAll(f)
    if err != nil {
        return service.Upload{}, err
    }
    if len(data) == 0 {
        return service.Upload{}, errors.New("empty file")
    }
    return service.Upload{Filename: fh.Filename, Data: data}, nil
}
