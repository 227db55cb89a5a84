package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"friendsync/internal/middleware"
	"friendsync/internal/services"
	"friendsync/internal/session"
)

// FriendHandler handles HTTP requests for the friend-relationship state
// machine: send/respond/cancel/remove plus the cache-only status lookup
// and the fire-and-forget search trigger.
type FriendHandler struct {
	friendService services.FriendService
	sessions      *session.Manager
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(fs services.FriendService, sessions *session.Manager) *FriendHandler {
	return &FriendHandler{friendService: fs, sessions: sessions}
}

// SendFriendRequestPayload defines the expected JSON body for sending a friend request.
type SendFriendRequestPayload struct {
	ReceiverID string `json:"receiverId"`
}

// SendFriendRequestHandler handles POST /api/v1/friend-requests
func (h *FriendHandler) SendFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}

	var payload SendFriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ReceiverID == "" {
		writeJSONError(w, "缺少接收者身份 (receiverId)", http.StatusBadRequest)
		return
	}

	request, err := h.friendService.SendFriendRequest(r.Context(), identity, payload.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSelfRequest),
			errors.Is(err, services.ErrRecipientNotFound),
			errors.Is(err, services.ErrAlreadyFriends):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrRequestAlreadyExists):
			writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("发送好友请求失败 (%s -> %s): %v", identity, payload.ReceiverID, err)
			writeJSONError(w, "发送好友请求失败", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, request)
}

// RespondFriendRequestPayload defines the expected JSON body for responding.
type RespondFriendRequestPayload struct {
	Accept bool `json:"accept"`
}

// RespondFriendRequestHandler handles POST /api/v1/friend-requests/{requestID}/respond
func (h *FriendHandler) RespondFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}
	requestID := mux.Vars(r)["requestID"]

	var payload RespondFriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	err := h.friendService.RespondToFriendRequest(r.Context(), identity, requestID, payload.Accept)
	if err != nil {
		h.writeRequestError(w, identity, requestID, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已处理"})
}

// CancelFriendRequestHandler handles DELETE /api/v1/friend-requests/{requestID}
func (h *FriendHandler) CancelFriendRequestHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}
	requestID := mux.Vars(r)["requestID"]

	if err := h.friendService.CancelFriendRequest(r.Context(), identity, requestID); err != nil {
		h.writeRequestError(w, identity, requestID, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友请求已撤回"})
}

// RemoveFriendHandler handles DELETE /api/v1/friends/{identity}
func (h *FriendHandler) RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}
	friendID := mux.Vars(r)["identity"]

	if err := h.friendService.RemoveFriend(r.Context(), identity, friendID); err != nil {
		log.Printf("删除好友失败 (%s -> %s): %v", identity, friendID, err)
		writeJSONError(w, "删除好友失败", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "好友已删除"})
}

// FriendshipStatusHandler handles GET /api/v1/friends/{identity}/status.
// The status is computed from the session's local caches only; no store
// query is issued.
func (h *FriendHandler) FriendshipStatusHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}
	target := mux.Vars(r)["identity"]

	sess := h.sessions.Get(identity)
	if sess == nil {
		// 没有活跃会话时按未登录处理。
		writeJSONResponse(w, http.StatusOK, services.FriendshipStatus{Kind: services.StatusNotLoggedIn})
		return
	}

	writeJSONResponse(w, http.StatusOK, sess.FriendshipStatus(target))
}

// SearchPayload defines the expected JSON body for a search trigger.
type SearchPayload struct {
	Query string `json:"query"`
}

// SearchHandler handles POST /api/v1/search. Fire-and-forget: the
// debounced results are delivered through the published state stream.
func (h *FriendHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户身份", http.StatusUnauthorized)
		return
	}

	var payload SearchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	sess := h.sessions.Get(identity)
	if sess == nil {
		// 搜索结果经由状态流推送，没有活跃会话就没有投递通道。
		writeJSONError(w, services.ErrNotSignedIn.Error(), http.StatusConflict)
		return
	}

	sess.SearchUsers(payload.Query)
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "搜索已受理"})
}

// writeRequestError 将状态机前置条件错误映射为相应的 HTTP 状态码。
func (h *FriendHandler) writeRequestError(w http.ResponseWriter, identity, requestID string, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidRequestReference):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotAuthorized):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrRequestNotPending):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("处理好友请求 %s 失败 (用户 %s): %v", requestID, identity, err)
		writeJSONError(w, "处理好友请求失败", http.StatusInternalServerError)
	}
}
