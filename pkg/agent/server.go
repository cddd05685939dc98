package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
)

var (
	RequestLogString  = "[%s] Incoming %s %s %s request"
	ResponseLogString = "[%s] Outcoming response %s %s with %d status code in %vms"
)

// RunServer serves the notifications of the control plane and the metrics
// until the context is done
func RunServer(ctx context.Context, config *Configuration, agent *Agent) {
	mux := http.NewServeMux()
	mux.Handle("/api/", createHandler(newNotificationHandler(agent)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", agent.healthCheckHandler)
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	server := &http.Server{
		Addr:              config.BindAddress,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("failed to shutdown server: %v", err)
		}
	}()

	klog.Infof("start listening on %s", config.BindAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		klog.Fatalf("failed to serve on %s: %v", config.BindAddress, err)
	}
}

// healthCheckHandler fails when the daemon loop has not completed an
// iteration for ten polling intervals
func (a *Agent) healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	if last := a.lastIteration.Load(); last != 0 {
		if since := time.Since(time.Unix(0, last)); since > 10*a.config.PollingInterval {
			klog.Warningf("daemon loop has not completed an iteration for %v", since)
			http.Error(w, "daemon loop stalled", http.StatusInternalServerError)
			return
		}
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		klog.Error(err)
	}
}

func createHandler(h *notificationHandler) http.Handler {
	wsContainer := restful.NewContainer()
	wsContainer.EnableContentEncoding(true)

	ws := new(restful.WebService)
	ws.Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	wsContainer.Add(ws)

	ws.Route(
		ws.POST("/ports/{id}/update").
			To(h.handlePortUpdate).
			Param(ws.PathParameter("id", "id of the updated port")).
			Returns(http.StatusAccepted, "port update queued", request.Response{}))
	ws.Route(
		ws.POST("/fdb/add").
			To(h.handleFdbAdd).
			Reads(request.FdbEntries{}).
			Returns(http.StatusAccepted, "fdb entries queued", request.Response{}))
	ws.Route(
		ws.POST("/fdb/remove").
			To(h.handleFdbRemove).
			Reads(request.FdbEntries{}).
			Returns(http.StatusAccepted, "fdb entries queued", request.Response{}))
	ws.Route(
		ws.POST("/fdb/update").
			To(h.handleFdbUpdate).
			Reads(request.FdbUpdate{}).
			Returns(http.StatusAccepted, "fdb update queued", request.Response{}))
	ws.Route(
		ws.POST("/security-groups/rules").
			To(h.handleSecurityGroupsRuleUpdated).
			Reads(request.SecurityGroupEvent{}))
	ws.Route(
		ws.POST("/security-groups/members").
			To(h.handleSecurityGroupsMemberUpdated).
			Reads(request.SecurityGroupEvent{}))
	ws.Route(
		ws.POST("/security-groups/provider").
			To(h.handleSecurityGroupsProviderUpdated).
			Reads(request.SecurityGroupEvent{}))

	ws.Filter(requestAndResponseLogger)

	return wsContainer
}

// web-service filter function used for request and response logging.
func requestAndResponseLogger(request *restful.Request, response *restful.Response,
	chain *restful.FilterChain,
) {
	klog.Info(formatRequestLog(request))
	start := time.Now()
	chain.ProcessFilter(request, response)
	elapsed := float64((time.Since(start)) / time.Millisecond)
	klog.Info(formatResponseLog(response, request, elapsed))
}

// formatRequestLog formats request log string.
func formatRequestLog(request *restful.Request) string {
	uri := ""
	if request.Request.URL != nil {
		uri = request.Request.URL.RequestURI()
	}

	return fmt.Sprintf(RequestLogString, time.Now().Format(time.RFC3339), request.Request.Proto,
		request.Request.Method, uri)
}

// formatResponseLog formats response log string.
func formatResponseLog(response *restful.Response, request *restful.Request, reqTime float64) string {
	uri := ""
	if request.Request.URL != nil {
		uri = request.Request.URL.RequestURI()
	}
	return fmt.Sprintf(ResponseLogString, time.Now().Format(time.RFC3339),
		request.Request.Method, uri, response.StatusCode(), reqTime)
}
