package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/savaki/jonbot/pkg/models"
	"github.com/savaki/jonbot/pkg/tenant"
)

// Settings modal block and action ids
const (
	configCallbackID = "jonbot_config"

	apiKeyBlock      = "reve_api_key_block"
	apiKeyAction     = "reve_api_key_input"
	resolutionBlock  = "resolution_block"
	resolutionAction = "resolution_select"
	styleBlock       = "style_block"
	styleAction      = "style_select"
)

// configMetadata travels in the modal's private_metadata
type configMetadata struct {
	TeamID string `json:"teamId"`
}

// settingsForm is the submitted content of the settings modal
type settingsForm struct {
	APIKey     string
	Resolution string
	Style      string
}

func (b *Bot) blockActions(ctx context.Context, req *Request) error {
	callback, err := req.Envelope.Interaction()
	if err != nil {
		return err
	}

	var action *slack.BlockAction
	for _, a := range callback.ActionCallback.BlockActions {
		if a.ActionID == actionOpenConfig {
			action = a
			break
		}
	}
	if action == nil {
		log.Printf("Ignoring block actions without %s", actionOpenConfig)
		return nil
	}

	teamID := action.Value
	if teamID == "" {
		teamID = callback.Team.ID
	}
	cfg, err := tenant.Load(ctx, b.store, teamID)
	if err != nil {
		return fmt.Errorf("load config for team %s: %w", teamID, err)
	}

	view, err := settingsModal(teamID, cfg)
	if err != nil {
		return err
	}
	if err := b.platform.OpenView(ctx, teamID, callback.TriggerID, view); err != nil {
		return fmt.Errorf("open settings modal: %w", err)
	}
	return nil
}

func settingsModal(teamID string, cfg models.TenantConfig) (slack.ModalViewRequest, error) {
	metadata, err := json.Marshal(configMetadata{TeamID: teamID})
	if err != nil {
		return slack.ModalViewRequest{}, fmt.Errorf("marshal metadata: %w", err)
	}

	keyInput := slack.NewPlainTextInputBlockElement(plain("Enter API key"), apiKeyAction)
	keyHint := plain("Leave empty to keep the current key")
	if cfg.GenerationAPIKey != "" {
		keyHint = plain("Leave empty to keep the current key " + models.MaskSecret(cfg.GenerationAPIKey))
	}
	keyBlock := slack.NewInputBlock(apiKeyBlock, plain("REVE API Key"), keyHint, keyInput)
	keyBlock.Optional = true

	var resolutionOptions []*slack.OptionBlockObject
	for _, r := range models.Resolutions {
		resolutionOptions = append(resolutionOptions, slack.NewOptionBlockObject(string(r), plain(string(r)), nil))
	}
	resolutionSelect := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plain("Resolution"), resolutionAction, resolutionOptions...)
	resolutionSelect.InitialOption = slack.NewOptionBlockObject(string(cfg.Resolution.OrDefault()), plain(string(cfg.Resolution.OrDefault())), nil)

	var styleOptions []*slack.OptionBlockObject
	for _, s := range models.Styles {
		styleOptions = append(styleOptions, slack.NewOptionBlockObject(string(s), plain(string(s)), nil))
	}
	styleSelect := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plain("Style"), styleAction, styleOptions...)
	styleSelect.InitialOption = slack.NewOptionBlockObject(string(cfg.Style.OrDefault()), plain(string(cfg.Style.OrDefault())), nil)

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      configCallbackID,
		Title:           plain("Jonbot Settings"),
		Submit:          plain("Save"),
		Close:           plain("Cancel"),
		PrivateMetadata: string(metadata),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			keyBlock,
			slack.NewInputBlock(resolutionBlock, plain("Image resolution"), nil, resolutionSelect),
			slack.NewInputBlock(styleBlock, plain("Image style"), nil, styleSelect),
		}},
	}, nil
}

func (b *Bot) viewSubmission(ctx context.Context, req *Request) error {
	callback, err := req.Envelope.Interaction()
	if err != nil {
		return err
	}

	teamID := submissionTeamID(callback)
	if teamID == "" {
		log.Printf("Warning: could not extract team id from view submission")
	}
	log.Printf("Save config - Team ID: %s", teamID)

	form := extractSettings(callback.View.State)
	errs := map[string]string{}

	resolution, err := models.ParseResolution(form.Resolution)
	if err != nil {
		errs[resolutionBlock] = "Unsupported resolution"
	}
	style, err := models.ParseStyle(form.Style)
	if err != nil {
		errs[styleBlock] = "Unsupported style"
	}

	current, err := tenant.Load(ctx, b.store, teamID)
	if err != nil {
		return fmt.Errorf("load config for team %s: %w", teamID, err)
	}

	key := strings.TrimSpace(form.APIKey)
	generator := b.orchestrator.Generator()
	switch {
	case key != "":
		if err := generator.ValidateKey(ctx, key); err != nil {
			log.Printf("API key validation failed: %v", err)
			errs[apiKeyBlock] = "Invalid API key: " + validationMessage(err)
		}
	case generator.NeedsAPIKey() && current.GenerationAPIKey == "":
		errs[apiKeyBlock] = "An API key is required"
	}

	if len(errs) > 0 {
		req.JSON(http.StatusOK, slack.NewErrorsViewSubmissionResponse(errs))
		return nil
	}

	_, err = tenant.Update(ctx, b.store, teamID, func(cfg *models.TenantConfig) {
		if key != "" {
			cfg.GenerationAPIKey = key
		}
		cfg.Resolution = resolution
		cfg.Style = style
	})
	if err != nil {
		log.Printf("ERROR: saving configuration for team %s: %v", teamID, err)
		req.JSON(http.StatusOK, slack.NewErrorsViewSubmissionResponse(map[string]string{
			apiKeyBlock: "Error saving configuration. Please try again.",
		}))
		return nil
	}

	log.Printf("Saved configuration for team: %s", teamID)
	req.JSON(http.StatusOK, slack.NewClearViewSubmissionResponse())
	return nil
}

// submissionTeamID reads the team from private_metadata, then from the payload
func submissionTeamID(callback slack.InteractionCallback) string {
	var metadata configMetadata
	if callback.View.PrivateMetadata != "" {
		if err := json.Unmarshal([]byte(callback.View.PrivateMetadata), &metadata); err != nil {
			log.Printf("Warning: invalid private_metadata: %v", err)
		}
	}
	if metadata.TeamID != "" {
		return metadata.TeamID
	}
	return callback.Team.ID
}

// extractSettings reads the modal values. Each value is looked up by its
// block and action id first; if the block id differs, every block is
// searched for the action id.
func extractSettings(state *slack.ViewState) settingsForm {
	if state == nil {
		return settingsForm{}
	}

	var form settingsForm
	if action, ok := findAction(state.Values, apiKeyBlock, apiKeyAction); ok {
		form.APIKey = action.Value
	}
	if action, ok := findAction(state.Values, resolutionBlock, resolutionAction); ok {
		form.Resolution = action.SelectedOption.Value
	}
	if action, ok := findAction(state.Values, styleBlock, styleAction); ok {
		form.Style = action.SelectedOption.Value
	}
	return form
}

func findAction(values map[string]map[string]slack.BlockAction, blockID, actionID string) (slack.BlockAction, bool) {
	if action, ok := values[blockID][actionID]; ok {
		return action, true
	}
	for id, actions := range values {
		if action, ok := actions[actionID]; ok {
			log.Printf("Found %s in block %s", actionID, id)
			return action, true
		}
	}
	return slack.BlockAction{}, false
}

func validationMessage(err error) string {
	var upstream *models.UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return upstream.Message
	}
	return models.UserMessage(err)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}
