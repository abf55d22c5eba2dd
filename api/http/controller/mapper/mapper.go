package mapper

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cartograph/api/api/common"
	"cartograph/api/api/interceptor"
	"cartograph/api/codes"
	"cartograph/api/log"
	"cartograph/api/service"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

var engine *service.MapServer

// Bind 设置控制器使用的地图引擎
func Bind(server *service.MapServer) {
	engine = server
}

type tableReq struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

func Health(c *gin.Context) {
	res := common.NewResponse()
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	res.Data = gin.H{"status": engine.Status().String()}
	c.JSON(http.StatusOK, res)
}

func Status(c *gin.Context) {
	res := common.NewResponse()
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	res.Data = gin.H{
		"summary": engine.Summary(),
		"tables":  engine.LoadedTables(),
	}
	c.JSON(http.StatusOK, res)
}

func Player(c *gin.Context) {
	res := common.NewResponse()
	info, ok := engine.PlayerInfo(c.Param("uid"))
	if !ok {
		res.Code = codes.CODE_ERR_OBJ_NOT_FOUND
		res.Msg = "player not found"
		c.JSON(http.StatusOK, res)
		return
	}
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	res.Data = info
	c.JSON(http.StatusOK, res)
}

func Restore(c *gin.Context) {
	res := common.NewResponse()
	msg, err := engine.HandleRestoreCommand(c.GetString(interceptor.ContextLanguage))
	res.Msg = msg
	switch {
	case errors.Is(err, service.ErrNotCorrupted):
		res.Code = codes.CODE_ERR_MAP_NOT_CORRUPTED
	case err != nil:
		res.Code = codes.CODE_ERR_UNKNOWN
	default:
		res.Code = codes.CODE_SUCCESS
		log.WithField("operator", c.GetString(interceptor.ContextUID)).Warn("server map restored over http")
	}
	c.JSON(http.StatusOK, res)
}

func Save(c *gin.Context) {
	res := common.NewResponse()
	if err := engine.OnGameWorldSave(); err != nil {
		res.Code = codes.CODE_ERR_PROCESSING
		res.Msg = err.Error()
		c.JSON(http.StatusOK, res)
		return
	}
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	c.JSON(http.StatusOK, res)
}

func PlaceTable(c *gin.Context) {
	res := common.NewResponse()
	var req tableReq
	if err := c.ShouldBindJSON(&req); err != nil {
		res.Code = codes.CODE_ERR_REQFORMAT
		res.Msg = "invalid request"
		c.JSON(http.StatusOK, res)
		return
	}
	pos := worldmap.BlockPos{X: req.X, Y: req.Y, Z: req.Z}
	err := engine.PlaceTable(pos)
	switch {
	case errors.Is(err, system.ErrTableExists):
		res.Code = codes.CODE_ERR_BAD_PARAMS
		res.Msg = "table already exists"
	case err != nil:
		log.Error("place table error ", err)
		res.Code = codes.CODE_ERR_PROCESSING
		res.Msg = "place table failed"
	default:
		res.Code = codes.CODE_SUCCESS
		res.Msg = "success"
		res.Data = pos.String()
	}
	c.JSON(http.StatusOK, res)
}

func RemoveTable(c *gin.Context) {
	res := common.NewResponse()
	pos, err := system.ParseBlockPos(c.Param("pos"))
	if err != nil {
		res.Code = codes.CODE_ERR_BAD_PARAMS
		res.Msg = err.Error()
		c.JSON(http.StatusOK, res)
		return
	}
	if err := engine.RemoveTable(pos); err != nil {
		log.Error("remove table error ", err)
		res.Code = codes.CODE_ERR_PROCESSING
		res.Msg = "remove table failed"
		c.JSON(http.StatusOK, res)
		return
	}
	res.Code = codes.CODE_SUCCESS
	res.Msg = "success"
	c.JSON(http.StatusOK, res)
}
