// internal/api/models.go model lifecycle endpoints
package api

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shroudml/shroud-go/internal/model"
	"github.com/shroudml/shroud-go/internal/modelstore"
)

// TensorFactRequest mirrors the tensor fact wire format of the upload body.
type TensorFactRequest struct {
	DatumType *string `json:"datum_type,omitempty"`
	Dims      []int   `json:"dims"`
	Index     *int    `json:"index,omitempty"`
	IndexName *string `json:"index_name,omitempty"`
}

// UploadModelRequest is the JSON body of POST /api/v1/models.
type UploadModelRequest struct {
	Model       string              `json:"model"` // base64-encoded model bytes
	ModelID     string              `json:"model_id,omitempty"`
	ModelName   string              `json:"model_name,omitempty"`
	InputFacts  []TensorFactRequest `json:"input_facts,omitempty"`
	OutputFacts []TensorFactRequest `json:"output_facts,omitempty"`
	Optimize    bool                `json:"optimize"`
	SaveModel   bool                `json:"save_model"`
	OwnerID     *int                `json:"owner_id,omitempty"`
}

// UploadModelResponse is the reply to a successful upload.
type UploadModelResponse struct {
	ModelID  string `json:"model_id"`
	ModelSHA string `json:"model_sha256"`
}

// UploadModel handles POST /api/v1/models.
func (c *Controller) UploadModel(ctx echo.Context) error {
	var req UploadModelRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.Model == "" {
		return c.HandleError(ctx, nil, "Missing model content", http.StatusBadRequest)
	}

	modelBytes, err := base64.StdEncoding.DecodeString(req.Model)
	if err != nil {
		return c.HandleError(ctx, err, "Model content is not valid base64", http.StatusBadRequest)
	}

	inputFacts, err := translateFactRequests(req.InputFacts)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid input facts", http.StatusBadRequest)
	}
	outputFacts, err := translateFactRequests(req.OutputFacts)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid output facts", http.StatusBadRequest)
	}

	id, hash, err := c.Store.AddModel(&modelstore.AddRequest{
		Bytes:       modelBytes,
		Name:        req.ModelName,
		ID:          req.ModelID,
		InputFacts:  inputFacts,
		OutputFacts: outputFacts,
		Persist:     req.SaveModel,
		Optimize:    req.Optimize,
		Context:     model.LoadFromUpload,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store model", statusForError(err))
	}

	return ctx.JSON(http.StatusCreated, UploadModelResponse{
		ModelID:  id,
		ModelSHA: hex.EncodeToString(hash[:]),
	})
}

// ListModels handles GET /api/v1/models.
func (c *Controller) ListModels(ctx echo.Context) error {
	snap := c.Store.Snapshot()
	return ctx.JSON(http.StatusOK, map[string]any{
		"models": snap.Models,
		"total":  len(snap.Models),
	})
}

// GetModel handles GET /api/v1/models/:id.
func (c *Controller) GetModel(ctx echo.Context) error {
	id := ctx.Param("id")
	info, ok := modelstore.UseModel(c.Store, id, modelstore.InfoOf)
	if !ok {
		return c.HandleError(ctx, nil, "Model not found", http.StatusNotFound)
	}
	return ctx.JSON(http.StatusOK, info)
}

// DeleteModel handles DELETE /api/v1/models/:id.
func (c *Controller) DeleteModel(ctx echo.Context) error {
	id := ctx.Param("id")
	if removed := c.Store.DeleteModel(id); removed == nil {
		return c.HandleError(ctx, nil, "Model not found", http.StatusNotFound)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func translateFactRequests(facts []TensorFactRequest) ([]model.TensorFact, error) {
	if len(facts) == 0 {
		return nil, nil
	}
	out := make([]model.TensorFact, 0, len(facts))
	for i := range facts {
		fact := &facts[i]
		tf := model.TensorFact{
			Dims:      fact.Dims,
			Index:     fact.Index,
			IndexName: fact.IndexName,
		}
		if fact.DatumType != nil {
			dt, err := model.ParseDatumType(*fact.DatumType)
			if err != nil {
				return nil, err
			}
			tf.DatumType = &dt
		}
		out = append(out, tf)
	}
	return out, nil
}
