// Package httputil holds the JSON response helpers and request middleware
// shared by the preview server and the health endpoints.
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.LoggingMiddleware(log))
//	router.Use(httputil.NoCacheMiddleware)
//
//	httputil.WriteJSON(w, http.StatusOK, status)
//	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
package httputil
