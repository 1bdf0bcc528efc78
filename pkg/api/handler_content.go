package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/models"
	"github.com/agora-discourse/agora/pkg/services"
)

// parseIDParam parses the :id path parameter as a uuid.
func parseIDParam(c *echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, newAPIError(http.StatusBadRequest, KindValidationFailed, "id must be a uuid")
	}
	return id, nil
}

// createPostHandler handles POST /api/v1/posts.
func (s *Server) createPostHandler(c *echo.Context) error {
	var req CreatePostRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	post, err := s.content.CreatePost(c.Request().Context(), services.CreatePostInput{
		AuthorID: currentUser(c).ID,
		Title:    req.Title,
		Content:  req.Content,
	})
	if err != nil {
		return mapServiceError(err)
	}

	s.enqueueAnalysis(c, models.ContentTypePost, post.ID, post.AnalysisContentHash)
	return respondCreated(c, post)
}

// getPostHandler handles GET /api/v1/posts/:id.
func (s *Server) getPostHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	post, err := s.content.GetPost(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, post)
}

// deletePostHandler handles DELETE /api/v1/posts/:id.
func (s *Server) deletePostHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	if err := s.content.SoftDelete(c.Request().Context(), models.ContentTypePost, id, currentUser(c)); err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, nil)
}

// createReplyHandler handles POST /api/v1/posts/:id/replies.
func (s *Server) createReplyHandler(c *echo.Context) error {
	postID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	var req CreateReplyRequest
	if err := c.Bind(&req); err != nil {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, "malformed request body")
	}

	quote, err := quoteFromRequest(&req)
	if err != nil {
		return err
	}

	reply, err := s.content.CreateReply(c.Request().Context(), services.CreateReplyInput{
		AuthorID:      currentUser(c).ID,
		PostID:        postID,
		ParentReplyID: req.ParentReplyID,
		Content:       req.Content,
		Quote:         quote,
	})
	if err != nil {
		return mapServiceError(err)
	}

	s.enqueueAnalysis(c, models.ContentTypeReply, reply.ID, reply.AnalysisContentHash)
	s.notifyReply(c, reply)
	return respondCreated(c, reply)
}

// quoteFromRequest validates the all-or-none quote fields.
func quoteFromRequest(req *CreateReplyRequest) (*services.QuoteInput, error) {
	hasAny := req.QuotedText != "" || req.QuotedSourceType != "" || req.QuotedSourceID != nil
	if !hasAny {
		return nil, nil
	}
	if req.QuotedText == "" || req.QuotedSourceType == "" || req.QuotedSourceID == nil {
		return nil, newAPIError(http.StatusBadRequest, KindValidationFailed,
			"quoted_text, quoted_source_type and quoted_source_id must be provided together")
	}
	return &services.QuoteInput{
		Text:       req.QuotedText,
		SourceType: models.ContentType(req.QuotedSourceType),
		SourceID:   *req.QuotedSourceID,
	}, nil
}

// listRepliesHandler handles GET /api/v1/posts/:id/replies. The cursor is the
// ltree path of the last reply on the previous page.
func (s *Server) listRepliesHandler(c *echo.Context) error {
	postID, err := parseIDParam(c)
	if err != nil {
		return err
	}
	limit := queryInt(c, "limit", 20)

	replies, hasMore, err := s.content.ListReplies(c.Request().Context(), postID, limit, c.QueryParam("cursor"))
	if err != nil {
		return mapServiceError(err)
	}

	var cursor string
	if hasMore && len(replies) > 0 {
		cursor = replies[len(replies)-1].Path
	}
	return respondOK(c, Page{Items: replies, Cursor: cursor, HasMore: hasMore})
}

// getReplyHandler handles GET /api/v1/replies/:id.
func (s *Server) getReplyHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	reply, err := s.content.GetReply(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, reply)
}

// deleteReplyHandler handles DELETE /api/v1/replies/:id.
func (s *Server) deleteReplyHandler(c *echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	if err := s.content.SoftDelete(c.Request().Context(), models.ContentTypeReply, id, currentUser(c)); err != nil {
		return mapServiceError(err)
	}
	return respondOK(c, nil)
}

// enqueueAnalysis opens an analysis run for freshly created content. A run
// already open for the same content hash is fine; anything else is logged but
// never fails the write that triggered it.
func (s *Server) enqueueAnalysis(c *echo.Context, sourceType models.ContentType, sourceID uuid.UUID, contentHash string) {
	_, err := s.analysis.OpenRun(c.Request().Context(), sourceType, sourceID, contentHash)
	if err != nil && !errors.Is(err, services.ErrAlreadyExists) {
		s.logger.Error("Failed to enqueue analysis run",
			"source_type", sourceType, "source_id", sourceID, "error", err)
	}
}

// notifyReply fans out the social notification for a new reply. Delivery
// failures are logged, not surfaced.
func (s *Server) notifyReply(c *echo.Context, reply *models.Reply) {
	ctx := c.Request().Context()

	var recipientID string
	var targetType models.ContentType
	var targetID uuid.UUID

	if reply.ParentReplyID != nil {
		parent, err := s.content.GetReply(ctx, *reply.ParentReplyID)
		if err != nil {
			return
		}
		recipientID = parent.AuthorID
		targetType = models.ContentTypeReply
		targetID = parent.ID
	} else {
		post, err := s.content.GetPost(ctx, reply.PostID)
		if err != nil {
			return
		}
		recipientID = post.AuthorID
		targetType = models.ContentTypePost
		targetID = post.ID
	}

	if err := s.notifications.NotifyReply(ctx, recipientID, reply.AuthorID, targetType, targetID); err != nil {
		s.logger.Error("Failed to create reply notification", "reply_id", reply.ID, "error", err)
	}
}
