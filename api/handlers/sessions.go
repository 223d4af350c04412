package handlers

import (
	"net/http"

	"github.com/trackhive/user-services/api/services"
)

func Login(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.LoginService(svc, w, r)
	}
}

func Logout(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.LogoutService(svc, w, r)
	}
}

func ValidLogin(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.ValidLoginService(svc, w, r)
	}
}

func Whoami(svc *services.Service) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		services.WhoamiService(svc, w, r)
	}
}
