package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glimpse-social/glimpse/pkg/database"
	"github.com/glimpse-social/glimpse/pkg/presence"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type editProfileRequest struct {
	Name           string `json:"name"`
	Bio            string `json:"bio"`
	Gender         string `json:"gender"`
	ProfilePicture string `json:"profilePicture"`
}

// userPayload is the user shape returned by login and profile endpoints
type userPayload struct {
	ID             string           `json:"_id"`
	Username       string           `json:"username"`
	Email          string           `json:"email"`
	Name           string           `json:"name"`
	Bio            string           `json:"bio"`
	Gender         string           `json:"gender"`
	ProfilePicture string           `json:"profilePicture"`
	Followers      []string         `json:"followers"`
	Followings     []string         `json:"followings"`
	Posts          []*database.Post `json:"posts"`
}

func (s *Server) userPayload(user *database.User) (*userPayload, error) {
	followers, err := s.db.Followers(user.ID)
	if err != nil {
		return nil, err
	}
	followings, err := s.db.Followings(user.ID)
	if err != nil {
		return nil, err
	}
	posts, err := s.db.PostsByAuthor(user.ID)
	if err != nil {
		return nil, err
	}

	return &userPayload{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		Name:           user.Name,
		Bio:            user.Bio,
		Gender:         user.Gender,
		ProfilePicture: user.ProfilePicture,
		Followers:      followers,
		Followings:     followings,
		Posts:          posts,
	}, nil
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message, "success": false})
}

func (s *Server) respondInternalError(c *gin.Context, err error) {
	errorLog.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	respondError(c, http.StatusInternalServerError, "something went wrong")
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "username, email and password are required")
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	_, err = s.db.CreateUser(req.Username, req.Email, hash)
	if errors.Is(err, database.ErrEmailTaken) || errors.Is(err, database.ErrUsernameTaken) {
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Account created successfully",
		"success": true,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.db.GetUserByEmail(req.Email)
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, http.StatusUnauthorized, ErrWrongCredentials.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}
	if !s.auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(c, http.StatusUnauthorized, ErrWrongCredentials.Error())
		return
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	payload, err := s.userPayload(user)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	maxAge := int(s.auth.TokenTTL().Seconds())
	c.SetCookie(tokenCookie, token, maxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome back " + user.Username,
		"success": true,
		"user":    payload,
		"token":   token,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(tokenCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
		"success": true,
	})
}

func (s *Server) handleProfile(c *gin.Context) {
	user, err := s.db.GetUserByID(c.Param("id"))
	if errors.Is(err, database.ErrUserNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	payload, err := s.userPayload(user)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	bookmarks, err := s.db.Bookmarks(user.ID)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"user":      payload,
		"bookmarks": bookmarks,
	})
}

func (s *Server) handleEditProfile(c *gin.Context) {
	var req editProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Bio) > s.config.Limits.MaxBioLength {
		respondError(c, http.StatusBadRequest, "bio is too long")
		return
	}

	user, err := s.db.UpdateProfile(currentUserID(c), req.Name, req.Bio, req.Gender, req.ProfilePicture)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated",
		"success": true,
		"user":    user,
	})
}

func (s *Server) handleSuggestedUsers(c *gin.Context) {
	users, err := s.db.SuggestedUsers(currentUserID(c))
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   users,
	})
}

func (s *Server) handleFollowOrUnfollow(c *gin.Context) {
	followerID := currentUserID(c)
	followeeID := c.Param("id")

	if followerID == followeeID {
		respondError(c, http.StatusBadRequest, database.ErrSelfFollow.Error())
		return
	}

	following, err := s.db.IsFollowing(followerID, followeeID)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	if following {
		if err := s.db.Unfollow(followerID, followeeID); err != nil {
			s.respondInternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Unfollowed successfully",
			"success": true,
		})
		return
	}

	if err := s.db.Follow(followerID, followeeID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, err.Error())
			return
		}
		s.respondInternalError(c, err)
		return
	}

	// Persisted; now tell the followee, if they're online.
	if follower, err := s.db.GetUserByID(followerID); err == nil {
		s.router.Route(followeeID, presence.EventNotification, gin.H{
			"type":        "follow",
			"userId":      followerID,
			"userDetails": follower.Summary(),
			"message":     "started following you",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Followed successfully",
		"success": true,
	})
}

func (s *Server) handleSearchUsers(c *gin.Context) {
	keyword := c.Query("keyword")
	if keyword == "" {
		respondError(c, http.StatusBadRequest, "keyword is required")
		return
	}

	users, err := s.db.SearchUsers(keyword)
	if err != nil {
		s.respondInternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   users,
	})
}
