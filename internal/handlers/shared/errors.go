package shared

import (
	"errors"
	"net/http"

	"campusride/internal/middleware"
	"campusride/internal/services"
	"campusride/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// respondError maps a service error onto the API error envelope.
func respondError(c *gin.Context, err error) {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		utils.InternalServerErrorResponse(c)
		return
	}

	switch svcErr.Kind {
	case services.KindNotFound:
		utils.ErrorResponse(c, http.StatusNotFound, utils.CodeNotFound, svcErr.Message)
	case services.KindUnauthorized:
		utils.ErrorResponse(c, http.StatusForbidden, utils.CodeForbidden, svcErr.Message)
	case services.KindInvalidState:
		utils.ErrorResponse(c, http.StatusConflict, utils.CodeInvalidState, svcErr.Message)
	case services.KindConflict:
		utils.ConflictResponse(c, svcErr.Message)
	case services.KindValidation:
		if len(svcErr.Fields) > 0 {
			utils.ValidationErrorResponse(c, svcErr.Fields.Map())
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, utils.CodeValidation, svcErr.Message)
	case services.KindDependencyUnavailable:
		utils.ErrorResponse(c, http.StatusServiceUnavailable, utils.CodeDependencyUnavailable, svcErr.Message)
	default:
		utils.InternalServerErrorResponse(c)
	}
}

func currentUser(c *gin.Context) (primitive.ObjectID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return primitive.NilObjectID, false
	}
	return userID, true
}

func objectIDParam(c *gin.Context, name, label string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+label+" ID")
		return primitive.NilObjectID, false
	}
	return id, true
}
