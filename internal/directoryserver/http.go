package directoryserver

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"
)

type publishRequest struct {
	InitKey []byte `json:"init_key"`
}

type fetchResponse struct {
	InitKey []byte `json:"init_key"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// requestIP strips the port from r.RemoteAddr for use as a rate-limit key.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Router builds the HTTP mux a directory-server process listens on:
// issuing bearer tokens, publishing, and fetching a user's init key.
func Router(svc *Service) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/users/{userName}/token", func(w http.ResponseWriter, r *http.Request) {
		userName := mux.Vars(r)["userName"]

		token, err := svc.IssueToken(userName)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotImplemented)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{Token: token})
	}).Methods("POST")

	r.HandleFunc("/users/{userName}/init-key", func(w http.ResponseWriter, r *http.Request) {
		userName := mux.Vars(r)["userName"]

		if err := svc.Authenticate(userName, r.Header.Get("Authorization")); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		var req publishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := svc.PublishInitKey(r.Context(), userName, req.InitKey); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}).Methods("POST")

	r.HandleFunc("/users/{userName}/init-key", func(w http.ResponseWriter, r *http.Request) {
		userName := mux.Vars(r)["userName"]
		requester := r.URL.Query().Get("requester")

		initKey, err := svc.FetchInitKey(r.Context(), userName, requester, requestIP(r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fetchResponse{InitKey: initKey})
	}).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("directory service is healthy"))
	}).Methods("GET")

	return r
}
