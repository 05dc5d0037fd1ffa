package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
)

const (
	toastTitleContactAdded   = "Contact Added"
	toastTitleContactUpdated = "Contact Updated"
	toastTitleContactDeleted = "Contact Deleted"
	toastTitleLimitReached   = "Limit Reached"
	limitReachedDescription  = "Maximum 4 contacts allowed."
	contactNotFoundMessage   = "Contact not found."
	invalidNameDescription   = "Name is required."
	invalidPhoneDescription  = "Phone number is required."
	invalidCategoryMessage   = "Choose one of the listed categories."

	contactIDParam           = "id"
	contactOwnerCondition    = "profile_id = ?"
	contactOwnedByCondition  = "id = ? AND profile_id = ?"
	contactListOrder         = "created_at asc, id asc"
	logEventCreateContact    = "create_contact"
	logEventUpdateContact    = "update_contact"
	logEventDeleteContact    = "delete_contact"
	logEventListContacts     = "list_contacts"
	logFieldContactID        = "contact_id"
	logFieldProfileID        = "profile_id"
	contactCountLabelPattern = "%d/%d"
)

var errContactLimitReached = errors.New("contact limit reached")

// ContactHandlers manages the caller's emergency contacts.
type ContactHandlers struct {
	database *gorm.DB
	logger   *zap.Logger
}

func NewContactHandlers(database *gorm.DB, logger *zap.Logger) *ContactHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactHandlers{database: database, logger: logger}
}

type contactRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
}

type contactResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Category      string `json:"category"`
	CategoryLabel string `json:"category_label"`
	CreatedAt     int64  `json:"created_at"`
}

type categoryResponse struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type listContactsResponse struct {
	Contacts   []contactResponse  `json:"contacts"`
	Count      int                `json:"count"`
	Limit      int                `json:"limit"`
	CountLabel string             `json:"count_label"`
	Categories []categoryResponse `json:"categories"`
}

type contactMutationResponse struct {
	Contact *contactResponse `json:"contact,omitempty"`
	Toast   *toastResponse   `json:"toast"`
}

func (handlers *ContactHandlers) ListContacts(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	contacts, listErr := handlers.loadContacts(context, currentUser.ProfileID)
	if listErr != nil {
		handlers.logger.Warn(logEventListContacts, zap.String(logFieldProfileID, currentUser.ProfileID), zap.Error(listErr))
		respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
		return
	}

	responses := make([]contactResponse, 0, len(contacts))
	for _, contact := range contacts {
		responses = append(responses, toContactResponse(contact))
	}
	context.JSON(http.StatusOK, listContactsResponse{
		Contacts:   responses,
		Count:      len(responses),
		Limit:      model.MaxEmergencyContacts,
		CountLabel: contactCountLabel(len(responses)),
		Categories: categoryResponses(),
	})
}

// CreateContact adds a contact unless the caller already holds the maximum.
func (handlers *ContactHandlers) CreateContact(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	var request contactRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}

	contact, contactErr := model.NewEmergencyContact(model.EmergencyContactInput{
		ProfileID: currentUser.ProfileID,
		Name:      request.Name,
		Phone:     request.Phone,
		Category:  request.Category,
	})
	if contactErr != nil {
		respondContactValidationError(context, contactErr)
		return
	}

	createErr := handlers.database.WithContext(context.Request.Context()).Transaction(func(transaction *gorm.DB) error {
		var existing int64
		if countErr := transaction.Model(&model.EmergencyContact{}).Where(contactOwnerCondition, currentUser.ProfileID).Count(&existing).Error; countErr != nil {
			return countErr
		}
		if existing >= model.MaxEmergencyContacts {
			return errContactLimitReached
		}
		return transaction.Create(&contact).Error
	})
	if errors.Is(createErr, errContactLimitReached) {
		respondError(context, http.StatusConflict, errorValueContactLimit, newErrorToast(toastTitleLimitReached, limitReachedDescription))
		return
	}
	if createErr != nil {
		handlers.logger.Warn(logEventCreateContact, zap.String(logFieldProfileID, currentUser.ProfileID), zap.Error(createErr))
		respondError(context, http.StatusInternalServerError, errorValueSaveFailed, nil)
		return
	}

	handlers.logger.Info(logEventCreateContact, zap.String(logFieldProfileID, currentUser.ProfileID), zap.String(logFieldContactID, contact.ID))
	response := toContactResponse(contact)
	context.JSON(http.StatusCreated, contactMutationResponse{Contact: &response, Toast: newToast(toastTitleContactAdded, "")})
}

// UpdateContact edits one of the caller's contacts. Editing is allowed at the limit.
func (handlers *ContactHandlers) UpdateContact(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	var request contactRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		respondError(context, http.StatusBadRequest, errorValueInvalidJSON, nil)
		return
	}
	fields, fieldsErr := model.NormalizeContactFields(model.EmergencyContactInput{
		Name:     request.Name,
		Phone:    request.Phone,
		Category: request.Category,
	})
	if fieldsErr != nil {
		respondContactValidationError(context, fieldsErr)
		return
	}

	contact, found := handlers.ownedContact(context, currentUser.ProfileID)
	if !found {
		return
	}

	updates := map[string]any{
		"name":     fields.Name,
		"phone":    fields.Phone,
		"category": fields.Category,
	}
	if updateErr := handlers.database.WithContext(context.Request.Context()).Model(&contact).Updates(updates).Error; updateErr != nil {
		handlers.logger.Warn(logEventUpdateContact, zap.String(logFieldContactID, contact.ID), zap.Error(updateErr))
		respondError(context, http.StatusInternalServerError, errorValueSaveFailed, nil)
		return
	}
	contact.Name = fields.Name
	contact.Phone = fields.Phone
	contact.Category = fields.Category

	response := toContactResponse(contact)
	context.JSON(http.StatusOK, contactMutationResponse{Contact: &response, Toast: newToast(toastTitleContactUpdated, "")})
}

func (handlers *ContactHandlers) DeleteContact(context *gin.Context) {
	currentUser, ok := CurrentUserFromContext(context)
	if !ok {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeyError: authErrorUnauthorized})
		return
	}

	contactID := strings.TrimSpace(context.Param(contactIDParam))
	result := handlers.database.WithContext(context.Request.Context()).
		Where(contactOwnedByCondition, contactID, currentUser.ProfileID).
		Delete(&model.EmergencyContact{})
	if result.Error != nil {
		handlers.logger.Warn(logEventDeleteContact, zap.String(logFieldContactID, contactID), zap.Error(result.Error))
		respondError(context, http.StatusInternalServerError, errorValueDeleteFailed, nil)
		return
	}
	if result.RowsAffected == 0 {
		respondError(context, http.StatusNotFound, errorValueNotFound, newErrorToast(toastTitleError, contactNotFoundMessage))
		return
	}

	context.JSON(http.StatusOK, contactMutationResponse{Toast: newToast(toastTitleContactDeleted, "")})
}

// ownedContact loads the contact named in the path; contacts of other users are reported as missing.
func (handlers *ContactHandlers) ownedContact(context *gin.Context, profileID string) (model.EmergencyContact, bool) {
	contactID := strings.TrimSpace(context.Param(contactIDParam))
	var contact model.EmergencyContact
	lookupErr := handlers.database.WithContext(context.Request.Context()).
		Where(contactOwnedByCondition, contactID, profileID).
		First(&contact).Error
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		respondError(context, http.StatusNotFound, errorValueNotFound, newErrorToast(toastTitleError, contactNotFoundMessage))
		return model.EmergencyContact{}, false
	}
	if lookupErr != nil {
		handlers.logger.Warn(logEventUpdateContact, zap.String(logFieldContactID, contactID), zap.Error(lookupErr))
		respondError(context, http.StatusInternalServerError, errorValueQueryFailed, nil)
		return model.EmergencyContact{}, false
	}
	return contact, true
}

func (handlers *ContactHandlers) loadContacts(context *gin.Context, profileID string) ([]model.EmergencyContact, error) {
	var contacts []model.EmergencyContact
	queryErr := handlers.database.WithContext(context.Request.Context()).
		Where(contactOwnerCondition, profileID).
		Order(contactListOrder).
		Find(&contacts).Error
	return contacts, queryErr
}

func respondContactValidationError(context *gin.Context, validationErr error) {
	switch {
	case errors.Is(validationErr, model.ErrInvalidContactName):
		respondError(context, http.StatusBadRequest, errorValueInvalidName, newErrorToast(toastTitleError, invalidNameDescription))
	case errors.Is(validationErr, model.ErrInvalidContactPhone):
		respondError(context, http.StatusBadRequest, errorValueInvalidPhone, newErrorToast(toastTitleError, invalidPhoneDescription))
	case errors.Is(validationErr, model.ErrInvalidContactCategory):
		respondError(context, http.StatusBadRequest, errorValueInvalidCategory, newErrorToast(toastTitleError, invalidCategoryMessage))
	default:
		respondError(context, http.StatusBadRequest, errorValueMissingFields, nil)
	}
}

func toContactResponse(contact model.EmergencyContact) contactResponse {
	return contactResponse{
		ID:            contact.ID,
		Name:          contact.Name,
		Phone:         contact.Phone,
		Category:      string(contact.Category),
		CategoryLabel: contact.Category.Label(),
		CreatedAt:     contact.CreatedAt.Unix(),
	}
}

func categoryResponses() []categoryResponse {
	options := model.ContactCategories()
	responses := make([]categoryResponse, 0, len(options))
	for _, option := range options {
		responses = append(responses, categoryResponse{Value: string(option.Value), Label: option.Label})
	}
	return responses
}

func contactCountLabel(count int) string {
	return fmt.Sprintf(contactCountLabelPattern, count, model.MaxEmergencyContacts)
}
