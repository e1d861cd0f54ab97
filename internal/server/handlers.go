package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f-sync/followtrack/internal/backup"
	"github.com/f-sync/followtrack/internal/history"
	"github.com/f-sync/followtrack/internal/importer"
	"github.com/f-sync/followtrack/internal/reconcile"
	"github.com/f-sync/followtrack/internal/relationships"
	"github.com/f-sync/followtrack/internal/report"
)

const (
	followersFormField           = "followers"
	followingFormField           = "following"
	takenAtFormField             = "takenAt"
	backupFormField              = "backup"
	fromQueryParameter           = "from"
	toQueryParameter             = "to"
	healthStatusKey              = "status"
	healthStatusOK               = "ok"
	jsonContentType              = "application/json"
	htmlContentType              = "text/html; charset=utf-8"
	contentDispositionHeader     = "Content-Disposition"
	attachmentDispositionFormat  = `attachment; filename="%s"`
	errorMessageMissingFile      = "missing %s file"
	errorMessageReadUpload       = "could not read %s file"
	errorMessageInvalidTakenAt   = "invalid snapshot time %q: use RFC 3339"
	errorMessageIncompleteRange  = "both from and to are required"
	errorMessageImportFailed     = "import failed"
	errorMessageEmptyHistory     = "no snapshots to back up"
	errorMessageEncodeFailed     = "backup could not be produced"
	errorMessageRenderFailed     = "report could not be rendered"
	errorMessageSnapshotNotFound = "no snapshot captured at %s"
	logMessageImportFailed       = "snapshot import failed"
	logMessageBackupFailed       = "backup encoding failed"
	logMessageRenderFailed       = "report rendering failed"
	logMessageRequestRejected    = "request rejected"
	logFieldReason               = "reason"
	logFieldStatus               = "status"
)

var (
	errMissingStore    = errors.New(errMessageMissingStore)
	errMissingImporter = errors.New(errMessageMissingImporter)
)

type historyHandler struct {
	store    HistoryStore
	importer SnapshotImporter
	recorder MutationRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func (handler historyHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler historyHandler) listSnapshots(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, historyResponse{Snapshots: summarizeHistory(handler.store.Snapshots())})
}

func (handler historyHandler) importSnapshot(ginContext *gin.Context) {
	followersFile, ok := handler.readUpload(ginContext, followersFormField)
	if !ok {
		return
	}
	followingFile, ok := handler.readUpload(ginContext, followingFormField)
	if !ok {
		return
	}

	takenAt := handler.now()
	if rawTakenAt := strings.TrimSpace(ginContext.PostForm(takenAtFormField)); rawTakenAt != "" {
		parsedTakenAt, err := time.Parse(time.RFC3339Nano, rawTakenAt)
		if err != nil {
			handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageInvalidTakenAt, rawTakenAt)})
			return
		}
		takenAt = parsedTakenAt
	}
	followersFile.ModifiedAt = takenAt
	followingFile.ModifiedAt = takenAt

	result, err := handler.importer.ImportFiles(followersFile, followingFile)
	if err != nil {
		var parseError *relationships.ParseError
		if errors.As(err, &parseError) {
			handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: parseError.Error(), File: parseError.Direction.String()})
			return
		}
		handler.logger.Error(logMessageImportFailed, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageImportFailed})
		return
	}

	status := http.StatusOK
	if result.Outcome == importer.OutcomeCreated {
		status = http.StatusCreated
	}
	ginContext.JSON(status, importResponse{
		Outcome:   result.Outcome.String(),
		Snapshot:  summarizeSnapshot(result.Snapshot),
		Snapshots: summarizeHistory(result.History),
		Warning:   warningText(result.PersistWarning),
	})
}

func (handler historyHandler) deleteSnapshot(ginContext *gin.Context) {
	rawTakenAt := ginContext.Param(takenAtPathParameter)
	takenAt, err := time.Parse(time.RFC3339Nano, rawTakenAt)
	if err != nil {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageInvalidTakenAt, rawTakenAt)})
		return
	}
	mutation := handler.store.RemoveOne(takenAt)
	if !mutation.Changed {
		handler.reject(ginContext, http.StatusNotFound, errorResponse{Error: fmt.Sprintf(errorMessageSnapshotNotFound, rawTakenAt)})
		return
	}
	handler.respondWithMutation(ginContext, mutation)
}

func (handler historyHandler) clearSnapshots(ginContext *gin.Context) {
	handler.respondWithMutation(ginContext, handler.store.Clear())
}

func (handler historyHandler) changes(ginContext *gin.Context) {
	rawFrom := strings.TrimSpace(ginContext.Query(fromQueryParameter))
	rawTo := strings.TrimSpace(ginContext.Query(toQueryParameter))
	currentHistory := handler.store.Snapshots()

	if rawFrom == "" && rawTo == "" {
		changes, ready := reconcile.LatestChanges(currentHistory)
		if !ready {
			ginContext.JSON(http.StatusOK, changesResponse{Ready: false})
			return
		}
		ginContext.JSON(http.StatusOK, newChangesResponse(changes))
		return
	}
	if rawFrom == "" || rawTo == "" {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: errorMessageIncompleteRange})
		return
	}

	from, err := time.Parse(time.RFC3339Nano, rawFrom)
	if err != nil {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageInvalidTakenAt, rawFrom)})
		return
	}
	to, err := time.Parse(time.RFC3339Nano, rawTo)
	if err != nil {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageInvalidTakenAt, rawTo)})
		return
	}
	changes, err := reconcile.Between(currentHistory, from, to)
	if err != nil {
		handler.reject(ginContext, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	ginContext.JSON(http.StatusOK, newChangesResponse(changes))
}

func (handler historyHandler) analysis(ginContext *gin.Context) {
	latest, found := handler.store.Snapshots().Latest()
	if !found {
		ginContext.JSON(http.StatusOK, analysisResponse{Ready: false})
		return
	}
	ginContext.JSON(http.StatusOK, newAnalysisResponse(reconcile.Analyze(latest)))
}

func (handler historyHandler) overview(ginContext *gin.Context) {
	overview, ready := reconcile.Overview(handler.store.Snapshots())
	if !ready {
		ginContext.JSON(http.StatusOK, overviewResponse{Ready: false, Trend: []snapshotSummary{}})
		return
	}
	ginContext.JSON(http.StatusOK, newOverviewResponse(overview))
}

func (handler historyHandler) reportPage(ginContext *gin.Context) {
	page, err := report.RenderPage(report.PageData{History: handler.store.Snapshots(), GeneratedAt: handler.now()})
	if err != nil {
		handler.logger.Error(logMessageRenderFailed, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageRenderFailed})
		return
	}
	ginContext.Data(http.StatusOK, htmlContentType, []byte(page))
}

func (handler historyHandler) downloadBackup(ginContext *gin.Context) {
	currentHistory := handler.store.Snapshots()
	if len(currentHistory) == 0 {
		handler.reject(ginContext, http.StatusNotFound, errorResponse{Error: errorMessageEmptyHistory})
		return
	}
	payload, err := backup.Encode(currentHistory)
	if err != nil {
		handler.logger.Error(logMessageBackupFailed, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageEncodeFailed})
		return
	}
	ginContext.Header(contentDispositionHeader, fmt.Sprintf(attachmentDispositionFormat, backup.FileName(handler.now())))
	ginContext.Data(http.StatusOK, jsonContentType, payload)
}

func (handler historyHandler) restoreBackup(ginContext *gin.Context) {
	backupFile, ok := handler.readUpload(ginContext, backupFormField)
	if !ok {
		return
	}
	result, err := handler.importer.RestoreBlob([]byte(backupFile.Content))
	if err != nil {
		response := errorResponse{Error: err.Error()}
		var restoreError *backup.RestoreError
		if errors.As(err, &restoreError) && restoreError.Index >= 0 {
			index := restoreError.Index
			response.Index = &index
		}
		handler.reject(ginContext, http.StatusBadRequest, response)
		return
	}
	ginContext.JSON(http.StatusOK, historyResponse{
		Snapshots: summarizeHistory(result.History),
		Warning:   warningText(result.PersistWarning),
	})
}

func (handler historyHandler) respondWithMutation(ginContext *gin.Context, mutation history.Mutation) {
	handler.recorder.SetHistorySize(len(mutation.History))
	if mutation.PersistWarning != nil {
		handler.recorder.RecordPersistWarning()
	}
	ginContext.JSON(http.StatusOK, historyResponse{
		Snapshots: summarizeHistory(mutation.History),
		Warning:   warningText(mutation.PersistWarning),
	})
}

func (handler historyHandler) readUpload(ginContext *gin.Context, formField string) (importer.ExportFile, bool) {
	fileHeader, err := ginContext.FormFile(formField)
	if err != nil {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageMissingFile, formField), File: formField})
		return importer.ExportFile{}, false
	}
	content, err := readFileHeader(fileHeader)
	if err != nil {
		handler.reject(ginContext, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(errorMessageReadUpload, formField), File: formField})
		return importer.ExportFile{}, false
	}
	return importer.ExportFile{Name: fileHeader.Filename, Content: content}, true
}

func (handler historyHandler) reject(ginContext *gin.Context, status int, response errorResponse) {
	handler.logger.Debug(logMessageRequestRejected, zap.Int(logFieldStatus, status), zap.String(logFieldReason, response.Error))
	ginContext.JSON(status, response)
}

func readFileHeader(fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
