package codes

const (
	CODE_SUCCESS               = 0
	CODE_ERR_UNKNOWN           = 1000
	CODE_ERR_BAD_PARAMS        = 1001
	CODE_ERR_REQFORMAT         = 1002
	CODE_ERR_SECURITY          = 1003
	CODE_ERR_OBJ_NOT_FOUND     = 1004
	CODE_ERR_PROCESSING        = 1005
	CODE_ERR_MAP_DISABLED      = 2001
	CODE_ERR_MAP_CORRUPTED     = 2002
	CODE_ERR_MAP_NOT_CORRUPTED = 2003
)
