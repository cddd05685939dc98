package agent

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/emicklei/go-restful/v3"
	"k8s.io/klog/v2"

	"github.com/kubeovn/ofagent/pkg/request"
)

type notificationHandler struct {
	agent *Agent
}

func newNotificationHandler(agent *Agent) *notificationHandler {
	return &notificationHandler{agent: agent}
}

func writeResponse(resp *restful.Response, status int, err error) {
	body := request.Response{}
	if err != nil {
		body.Err = err.Error()
	}
	if err := resp.WriteHeaderAndEntity(status, body); err != nil {
		klog.Errorf("failed to write response, %v", err)
	}
}

func readEntity(req *restful.Request, resp *restful.Response, entity any) bool {
	if err := req.ReadEntity(entity); err != nil {
		errMsg := fmt.Errorf("parse %s request failed %w", req.SelectedRoutePath(), err)
		klog.Error(errMsg)
		writeResponse(resp, http.StatusBadRequest, errMsg)
		return false
	}
	klog.V(5).Infof("request body is %+v", entity)
	return true
}

// writeQueued maps the result of queueing a notification to a status code
func writeQueued(resp *restful.Response, err error) {
	switch {
	case err == nil:
		writeResponse(resp, http.StatusAccepted, nil)
	case errors.Is(err, ErrFdbQueueFull):
		writeResponse(resp, http.StatusServiceUnavailable, err)
	default:
		writeResponse(resp, http.StatusInternalServerError, err)
	}
}

func (h *notificationHandler) handlePortUpdate(req *restful.Request, resp *restful.Response) {
	id := req.PathParameter("id")
	if id == "" {
		writeResponse(resp, http.StatusBadRequest, errors.New("port id is required"))
		return
	}
	klog.Infof("port %s updated", id)
	h.agent.PortUpdate(id)
	writeResponse(resp, http.StatusAccepted, nil)
}

func (h *notificationHandler) handleFdbAdd(req *restful.Request, resp *restful.Response) {
	entries := request.FdbEntries{}
	if !readEntity(req, resp, &entries) {
		return
	}
	writeQueued(resp, h.agent.FdbAdd(entries))
}

func (h *notificationHandler) handleFdbRemove(req *restful.Request, resp *restful.Response) {
	entries := request.FdbEntries{}
	if !readEntity(req, resp, &entries) {
		return
	}
	writeQueued(resp, h.agent.FdbRemove(entries))
}

func (h *notificationHandler) handleFdbUpdate(req *restful.Request, resp *restful.Response) {
	update := &request.FdbUpdate{}
	if !readEntity(req, resp, update) {
		return
	}
	writeQueued(resp, h.agent.FdbUpdate(update))
}

func (h *notificationHandler) handleSecurityGroupsRuleUpdated(req *restful.Request, resp *restful.Response) {
	evt := request.SecurityGroupEvent{}
	if !readEntity(req, resp, &evt) {
		return
	}
	h.agent.sgAgent.SecurityGroupsRuleUpdated(evt.SecurityGroups)
	writeResponse(resp, http.StatusOK, nil)
}

func (h *notificationHandler) handleSecurityGroupsMemberUpdated(req *restful.Request, resp *restful.Response) {
	evt := request.SecurityGroupEvent{}
	if !readEntity(req, resp, &evt) {
		return
	}
	h.agent.sgAgent.SecurityGroupsMemberUpdated(evt.SecurityGroups)
	writeResponse(resp, http.StatusOK, nil)
}

func (h *notificationHandler) handleSecurityGroupsProviderUpdated(req *restful.Request, resp *restful.Response) {
	evt := request.SecurityGroupEvent{}
	if !readEntity(req, resp, &evt) {
		return
	}
	h.agent.sgAgent.SecurityGroupsProviderUpdated(evt.Devices)
	writeResponse(resp, http.StatusOK, nil)
}
