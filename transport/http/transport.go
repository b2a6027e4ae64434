package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/docrag"
)

const maxUploadSize = 32 << 20

func fail(c *gin.Context, status int, err error) {
	c.JSON(status, docrag.NewFailure(err))
	c.Error(err)
	c.Abort()
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, &docrag.Failure{
		Kind:    docrag.KindInvalidRequest,
		Message: err.Error(),
	})
	c.Error(err)
	c.Abort()
}

func failed(c *gin.Context, err error) {
	fail(c, docrag.StatusCode(docrag.KindOf(err)), err)
}

func ListFilesHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"files": resp})
	}
}

func UploadFileHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := c.FormFile("file")
		if err != nil {
			badRequest(c, err)
			return
		}

		if header.Size > maxUploadSize {
			badRequest(c, errors.New("file too large"))
			return
		}

		f, err := header.Open()
		if err != nil {
			badRequest(c, err)
			return
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			badRequest(c, err)
			return
		}

		req := docrag.SaveFileRequest{
			Name:    header.Filename,
			Content: content,
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func IngestHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func SearchHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req docrag.SearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"results": resp,
		})
	}
}

func QueryHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("query")
		if query == "" {
			badRequest(c, docrag.ErrEmptyQuery)
			return
		}

		req := docrag.AnswerRequest{
			Query: query,
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func ChatHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req docrag.AnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func ResetHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		_, err := endpoint(ctx, nil)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "collection reset"})
	}
}

func CollectionInfoHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req docrag.CollectionInfoRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			failed(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}
