package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glimpse-social/glimpse/pkg/database"
	"github.com/glimpse-social/glimpse/pkg/presence"
)

type addPostRequest struct {
	Caption string `json:"caption"`
	Image   string `json:"image"`
}

type addCommentRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddPost(c *gin.Context) {
	var req addPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Caption == "" && req.Image == "" {
		respondError(c, http.StatusBadRequest, "post needs a caption or an image")
		return
	}
	if len(req.Caption) > s.config.Limits.MaxCaptionLength {
		respondError(c, http.StatusBadRequest, "caption is too long")
		return
	}

	post, err := s.db.CreatePost(currentUserID(c), req.Caption, req.Image)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "New post added",
		"success": true,
		"post":    post,
	})
}

func (s *Server) handleFeed(c *gin.Context) {
	posts, err := s.db.FeedPosts(currentUserID(c))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"posts":   posts,
	})
}

func (s *Server) handleExplore(c *gin.Context) {
	posts, err := s.db.ExplorePosts(currentUserID(c))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"posts":   posts,
	})
}

func (s *Server) handleUserPosts(c *gin.Context) {
	posts, err := s.db.PostsByAuthor(currentUserID(c))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"posts":   posts,
	})
}

// notifyPostOwner pushes a like/dislike notification to the post owner's
// live connection. Called only after the write has been persisted; a
// self-like produces no notification.
func (s *Server) notifyPostOwner(actorID, postID, kind, message string) {
	ownerID, err := s.db.PostAuthorID(postID)
	if err != nil || ownerID == actorID {
		return
	}
	actor, err := s.db.GetUserByID(actorID)
	if err != nil {
		return
	}

	s.router.Route(ownerID, presence.EventNotification, gin.H{
		"type":        kind,
		"userId":      actorID,
		"userDetails": actor.Summary(),
		"postId":      postID,
		"message":     message,
	})
}

func (s *Server) handleLikePost(c *gin.Context) {
	userID := currentUserID(c)
	postID := c.Param("id")

	if err := s.db.LikePost(postID, userID); err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		s.respondInternalError(c, err)
		return
	}

	s.notifyPostOwner(userID, postID, "like", "Your post was liked")

	c.JSON(http.StatusOK, gin.H{
		"message": "Post liked",
		"success": true,
	})
}

func (s *Server) handleDislikePost(c *gin.Context) {
	userID := currentUserID(c)
	postID := c.Param("id")

	if err := s.db.UnlikePost(postID, userID); err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		s.respondInternalError(c, err)
		return
	}

	s.notifyPostOwner(userID, postID, "dislike", "Your post was disliked")

	c.JSON(http.StatusOK, gin.H{
		"message": "Post disliked",
		"success": true,
	})
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(c, http.StatusBadRequest, "text is required")
		return
	}
	if len(req.Text) > s.config.Limits.MaxCommentLength {
		respondError(c, http.StatusBadRequest, "comment is too long")
		return
	}

	comment, err := s.db.CreateComment(c.Param("id"), currentUserID(c), req.Text)
	if err != nil {
		if errors.Is(err, database.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment added",
		"success": true,
		"comment": comment,
	})
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.db.CommentsForPost(c.Param("id"))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"comments": comments,
	})
}

func (s *Server) handleDeletePost(c *gin.Context) {
	err := s.db.DeletePost(c.Param("id"), currentUserID(c))
	if errors.Is(err, database.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, database.ErrPostNotOwned) {
		respondError(c, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Post deleted",
		"success": true,
	})
}

func (s *Server) handleBookmarkPost(c *gin.Context) {
	saved, err := s.db.ToggleBookmark(currentUserID(c), c.Param("id"))
	if errors.Is(err, database.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	if saved {
		c.JSON(http.StatusOK, gin.H{
			"message": "Post bookmarked",
			"type":    "saved",
			"success": true,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Post removed from bookmark",
		"type":    "unsaved",
		"success": true,
	})
}
