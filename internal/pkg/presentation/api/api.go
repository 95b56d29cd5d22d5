package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"log/slog"

	"github.com/diwise/iot-gateway-registry/internal/pkg/application/controlurls"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/deviceregistry"
	"github.com/diwise/iot-gateway-registry/internal/pkg/application/webevents"
	"github.com/diwise/iot-gateway-registry/internal/pkg/infrastructure/storage"
	"github.com/diwise/iot-gateway-registry/internal/pkg/presentation/api/auth"
	"github.com/diwise/iot-gateway-registry/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("iot-gateway-registry/api")

func RegisterHandlers(ctx context.Context, router *chi.Mux, policies io.Reader, registry deviceregistry.DeviceRegistry, urls controlurls.ControlURLService, we webevents.WebEvents) (*chi.Mux, error) {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	log := logging.GetFromContext(ctx)

	// Handle valid / invalid tokens.
	authenticator, err := auth.NewAuthenticator(ctx, log, policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create api authenticator: %w", err)
	}

	router.Route("/api/v0", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Get("/gateways", queryDevicesHandler(log, "query-gateways", registry.Gateways))
			r.Get("/nodes", queryDevicesHandler(log, "query-nodes", registry.Nodes))
			r.Get("/controllers", queryDevicesHandler(log, "query-controllers", registry.Controllers))
			r.Get("/sensors", queryDevicesHandler(log, "query-sensors", registry.Sensors))

			r.Route("/controlurls", func(r chi.Router) {
				r.Get("/", queryControlURLsHandler(log, urls))
				r.Post("/", createControlURLHandler(log, urls))
				r.Patch("/{controlURLID}", patchControlURLHandler(log, urls))
				r.Delete("/{controlURLID}", deleteControlURLHandler(log, urls))
			})
		})
	})

	router.Mount("/events", we.Server())

	return router, nil
}

func queryDevicesHandler(log *slog.Logger, spanName string, query func(ctx context.Context) ([]types.DeviceRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), spanName)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		records, err := query(ctx)
		if err != nil {
			requestLogger.Error("could not fetch data", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(newDeviceCollectionResponse(records).Byte())
	}
}

func queryControlURLsHandler(log *slog.Logger, svc controlurls.ControlURLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "query-control-urls")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		nodeID := r.URL.Query().Get("node_id")
		if nodeID == "" {
			err = errors.New("query parameter node_id is required")
			requestLogger.Info(err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		requestLogger = requestLogger.With(slog.String("node_id", nodeID))

		items, err := svc.MergedList(ctx, nodeID)
		if err != nil {
			requestLogger.Error("could not assemble control url list", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		b, err := json.Marshal(ApiResponse{Data: items})
		if err != nil {
			requestLogger.Error("unable to marshal control urls", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}

func createControlURLHandler(log *slog.Logger, svc controlurls.ControlURLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-control-url")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			requestLogger.Error("unable to read body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var item types.ControlURLItem
		err = json.Unmarshal(body, &item)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		created, err := svc.Create(ctx, item)
		if errors.Is(err, storage.ErrNoID) || errors.Is(err, storage.ErrAlreadyExist) {
			requestLogger.Info("rejected control url", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			requestLogger.Error("unable to create control url", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		b, err := json.Marshal(created)
		if err != nil {
			requestLogger.Error("unable to marshal control url", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	}
}

func patchControlURLHandler(log *slog.Logger, svc controlurls.ControlURLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "patch-control-url")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "controlURLID")
		if id != "" {
			requestLogger = requestLogger.With(slog.String("control_url_id", id))
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			requestLogger.Error("unable to read body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var item types.ControlURLItem
		err = json.Unmarshal(body, &item)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.Update(ctx, id, item)
		if errors.Is(err, controlurls.ErrControlURLNotFound) {
			requestLogger.Debug("control url not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrNoID) {
			requestLogger.Info("rejected control url update", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			requestLogger.Error("unable to update control url", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	}
}

func deleteControlURLHandler(log *slog.Logger, svc controlurls.ControlURLService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "delete-control-url")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "controlURLID")
		if id != "" {
			requestLogger = requestLogger.With(slog.String("control_url_id", id))
		}

		err = svc.Delete(ctx, id)
		if errors.Is(err, controlurls.ErrControlURLNotFound) {
			requestLogger.Debug("control url not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, storage.ErrNoID) {
			requestLogger.Info("rejected control url delete", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			requestLogger.Error("unable to delete control url", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
