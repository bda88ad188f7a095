package sources

import "strings"

var platformAliases = map[string]string{
	"微博":     "weibo",
	"新浪微博":   "weibo",
	"知乎":     "zhihu",
	"哔哩哔哩":   "bilibili",
	"b站":     "bilibili",
	"bili":   "bilibili",
	"抖音":     "douyin",
	"快手":     "kuaishou",
	"小红书":    "xiaohongshu",
	"xhs":    "xiaohongshu",
	"百度":     "baidu",
	"百度贴吧":   "tieba",
	"贴吧":     "tieba",
	"今日头条":   "toutiao",
	"头条":     "toutiao",
	"澎湃新闻":   "thepaper",
	"36氪":    "36kr",
	"虎扑":     "hupu",
	"豆瓣":     "douban",
	"腾讯新闻":   "tencent",
	"网易新闻":   "netease",
	"weixin": "wechat",
	"微信":     "wechat",
}

var platformSuffixes = []string{
	"-hot-search", "_hot_search", "-hotsearch",
	"-realtime", "-trending", "_trending",
	"-hot", "_hot", "-rank", "_rank",
}

// NormalizePlatform collapses hot-list source names onto a canonical platform
// name, e.g. "bilibili-hot-search" and "哔哩哔哩" both become "bilibili".
func NormalizePlatform(name string) string {
	p := strings.ToLower(strings.TrimSpace(name))
	if p == "" {
		return ""
	}
	if alias, ok := platformAliases[p]; ok {
		return alias
	}
	for _, suffix := range platformSuffixes {
		if strings.HasSuffix(p, suffix) && len(p) > len(suffix) {
			p = strings.TrimSuffix(p, suffix)
			break
		}
	}
	if alias, ok := platformAliases[p]; ok {
		return alias
	}
	return p
}
