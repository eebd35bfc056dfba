package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jypelle/tftmirror/apimodel"
	"github.com/jypelle/tftmirror/internal/srv/config"
	"github.com/jypelle/tftmirror/internal/tool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrPanelSleeping is returned by a MirrorController refusing to light a sleeping panel.
var ErrPanelSleeping = errors.New("panel is sleeping")

// MirrorController is what the api can see and change of the running mirror.
type MirrorController interface {
	Status() apimodel.Status
	SetBrightness(brightness int) error
}

type Api struct {
	router    *mux.Router
	apiRouter *mux.Router
	server    *http.Server

	config     *config.ServerConfig
	controller MirrorController
}

func NewApi(config *config.ServerConfig, controller MirrorController) *Api {
	api := Api{
		config:     config,
		controller: controller,
	}

	api.router = mux.NewRouter().StrictSlash(false)

	// API Routes
	api.apiRouter = api.router.PathPrefix("/api").Subrouter()
	api.apiRouter.NotFoundHandler = http.HandlerFunc(ErrorNotFoundAction)
	api.apiRouter.MethodNotAllowedHandler = http.HandlerFunc(ErrorMethodNotAllowedAction)

	// Auth middleware
	api.apiRouter.Use(
		func(handler http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer func() {
					if rec := recover(); rec != nil {
						logrus.Warningf("recovered from panic : [%v] - stack trace : \n [%s]", rec, debug.Stack())
						strMessage := fmt.Sprintf("%v", rec)
						GlobalErrorAction(w, strMessage, http.StatusInternalServerError)
					}
				}()

				// Check API Key
				apiKey := r.Header.Get("x-api-key")
				if apiKey != config.ApiParam.ApiKey {
					ErrorStatusAction(w, r, http.StatusForbidden)
					return
				}

				logrus.Debugf("PATH: %s %s", r.Host, r.URL.Path)

				handler.ServeHTTP(w, r)
			})
		})

	// Create server check endpoint
	api.apiRouter.HandleFunc("/is_alive",
		func(w http.ResponseWriter, r *http.Request) {
			ErrorStatusAction(w, r, http.StatusOK)
		}).Methods("GET")
	api.apiRouter.HandleFunc("/status",
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(api.controller.Status()); err != nil {
				logrus.Warnf("Unable to encode status: %v", err)
			}
		}).Methods("GET")
	api.apiRouter.HandleFunc("/brightness/{brightness}",
		func(w http.ResponseWriter, r *http.Request) {
			brightness, err := strconv.Atoi(mux.Vars(r)["brightness"])
			if err != nil || brightness < 0 || brightness > MAX_BRIGHTNESS {
				apimodel.WrongParametersErrorMessage.SendError(w)
				return
			}

			err = api.controller.SetBrightness(brightness)
			switch {
			case err == nil:
				ErrorStatusAction(w, r, http.StatusOK)
			case errors.Is(err, ErrPanelSleeping):
				apimodel.PanelSleepingErrorMessage.SendError(w)
			default:
				GlobalErrorAction(w, err.Error(), http.StatusInternalServerError)
			}
		}).Methods("POST")

	// Tell the browser that it's OK for JS to communicate with the server
	headersOk := handlers.AllowedHeaders([]string{"Authorization", "x-api-key"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"})

	api.server = &http.Server{
		Addr:         ":" + strconv.FormatInt(config.ApiParam.SslPort, 10),
		Handler:      handlers.CompressHandler(handlers.CORS(originsOk, headersOk, methodsOk)(api.router)),
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 240,
	}

	return &api
}

func (d *Api) Start() error {
	logrus.Infof("Start api device")

	generated, err := tool.EnsureTlsCertificate(
		afero.NewOsFs(),
		"jypelle",
		"TFT Mirror Server",
		d.selfSignedKeyFilename(),
		d.selfSignedCertFilename(),
		[]string{})
	if err != nil {
		return fmt.Errorf("unable to prepare cert and key files: %w", err)
	}
	if generated {
		logrus.Info("Self-signed cert and key files generated")
	}

	// Launch https server
	go func() {
		err := d.server.ListenAndServeTLS(d.selfSignedCertFilename(), d.selfSignedKeyFilename())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Error(err)
		}
	}()
	return nil
}

func (d *Api) Stop() {
	logrus.Infof("Stop api device")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.server.Shutdown(ctx); err != nil {
		logrus.Warnf("Unable to stop api server cleanly: %v", err)
	}
}

func (d *Api) selfSignedKeyFilename() string {
	return filepath.Join(d.config.ConfigDir, "key.pem")
}

func (d *Api) selfSignedCertFilename() string {
	return filepath.Join(d.config.ConfigDir, "cert.pem")
}

func ErrorNotFoundAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusNotFound)
}

func ErrorMethodNotAllowedAction(w http.ResponseWriter, r *http.Request) {
	ErrorStatusAction(w, r, http.StatusMethodNotAllowed)
}

func ErrorStatusAction(w http.ResponseWriter, r *http.Request, status int) {
	ErrorMessageAction(w, "", status)
}

func GlobalErrorAction(w http.ResponseWriter, message string, status int) {
	ErrorMessageAction(w, message, status)
}

func ErrorMessageAction(w http.ResponseWriter, title string, status int) {
	apimodel.ErrorMessage{
		ErrStatusCode: status,
		ErrMessage:    title,
	}.SendError(w)
}
