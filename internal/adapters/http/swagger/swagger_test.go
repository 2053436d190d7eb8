package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func serve(mux *http.ServeMux, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	convey.Convey("Given the docs routes on a mux", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		convey.Convey("When the OpenAPI document is fetched", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, SpecPath, http.NoBody))

			convey.Convey("Then the scoreboard routes are described", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "/api/admin/matches")
				convey.So(w.Header().Get("Last-Modified"), convey.ShouldNotBeEmpty)
			})

			convey.Convey("And a conditional refetch is not modified", func() {
				req := httptest.NewRequest(http.MethodGet, SpecPath, http.NoBody)
				req.Header.Set("If-Modified-Since", w.Header().Get("Last-Modified"))
				again := serve(mux, req)

				convey.So(again.Code, convey.ShouldEqual, http.StatusNotModified)
			})
		})

		convey.Convey("When the docs page is fetched", func() {
			w := serve(mux, httptest.NewRequest(http.MethodGet, DocsPath, http.NoBody))

			convey.Convey("Then ReDoc is pointed at the document", func() {
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Redoc.init('/openapi.yaml'")
			})
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}
